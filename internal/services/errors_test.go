package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUniqueConstraintErrorDetection(t *testing.T) {
	require.False(t, isUniqueConstraintError(nil))
	require.False(t, isUniqueConstraintError(errors.New("connection reset by peer")))

	require.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	// Vendor strings for the same condition.
	require.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: direct_links.envelope_id")))
	require.True(t, isUniqueConstraintError(errors.New(`duplicate key value violates unique constraint "idx_direct_links_envelope_id"`)))
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAcceptsLevels(t *testing.T) {
	require.NoError(t, Init("debug"))
	require.NoError(t, Init("info"))

	// Unknown levels fall back to info rather than failing start-up.
	require.NoError(t, Init("chatty"))
}

func TestWithModuleReturnsLogger(t *testing.T) {
	require.NoError(t, Init("info"))
	require.NotNil(t, WithModule("sealing"))
}

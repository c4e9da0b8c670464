package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/database"
)

// MustOpenTestDB opens an isolated in-memory SQLite database for tests with
// the full schema migrated. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A private in-memory database per test keeps parallel tests isolated.
	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file::memory:?_foreign_keys=1",
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)

	// A single underlying connection makes the shared in-memory database
	// behave predictably when services open nested transactions.
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

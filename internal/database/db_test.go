package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/models"
)

func TestOpenDefaultsToSQLite(t *testing.T) {
	db, err := Open(Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestMigratedSchemaRoundTrip(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:?_foreign_keys=1"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	envelope := models.Envelope{
		Type:   models.EnvelopeTypeDocument,
		Status: models.EnvelopeStatusDraft,
		Title:  "Lease Agreement",
		UserID: "4dbf64b7-4b19-4cf1-9f3e-0e4f7c0b62e5",
		Recipients: []models.Recipient{
			{Role: models.RecipientRoleSigner, Email: "signer@example.com", Token: "tok-1"},
		},
	}
	require.NoError(t, db.Create(&envelope).Error)
	require.NotEmpty(t, envelope.ID)

	var reloaded models.Envelope
	require.NoError(t, db.Preload("Recipients").First(&reloaded, "id = ?", envelope.ID).Error)
	require.Len(t, reloaded.Recipients, 1)
	require.Equal(t, "signer@example.com", reloaded.Recipients[0].Email)
}

package database

import (
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Blob{},
		&models.Envelope{},
		&models.EnvelopeItem{},
		&models.Recipient{},
		&models.Field{},
		&models.Signature{},
		&models.DirectLink{},
		&models.EnvelopeAuditLog{},
	)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Blob is an opaque binary payload addressed by ID. Envelope items, sealed
// outputs, certificates, and audit-log artifacts all live here. Blobs are
// immutable once written; copy-on-write duplication creates a new row.
type Blob struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Data      []byte    `gorm:"not null" json:"-"`
	Size      int64     `gorm:"not null" json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *Blob) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Size = int64(len(b.Data))
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
)

// ErrBlobNotFound indicates no blob exists for the requested identifier.
var ErrBlobNotFound = errors.New("storage: blob not found")

// BlobStore persists opaque binary payloads, ID-addressed, with exact byte
// round-trip. Envelope item payloads and sealing artifacts live behind it.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

// GormBlobStore stores blobs in the relational database.
type GormBlobStore struct {
	db *gorm.DB
}

// NewGormBlobStore constructs a database-backed blob store.
func NewGormBlobStore(db *gorm.DB) (*GormBlobStore, error) {
	if db == nil {
		return nil, errors.New("blob store: db is required")
	}
	return &GormBlobStore{db: db}, nil
}

// Put stores a copy of data and returns its identifier.
func (s *GormBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	blob := models.Blob{Data: append([]byte(nil), data...)}
	if err := s.db.WithContext(ctx).Create(&blob).Error; err != nil {
		return "", fmt.Errorf("blob store: put: %w", err)
	}
	return blob.ID, nil
}

// Get returns a copy of the stored bytes.
func (s *GormBlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	var blob models.Blob
	err := s.db.WithContext(ctx).First(&blob, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob store: get: %w", err)
	}
	return append([]byte(nil), blob.Data...), nil
}

package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditEntry captures a single envelope event to persist.
type AuditEntry struct {
	EnvelopeID  string
	Type        string
	UserID      *string
	RecipientID *string
	Email       string
	Name        string
	IPAddress   string
	UserAgent   string
	Data        map[string]any
}

// AuditService persists and retrieves the append-only envelope event log.
// Entries are never updated or deleted.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Append stores an audit entry outside any caller transaction.
func (s *AuditService) Append(ctx context.Context, entry AuditEntry) error {
	return appendAudit(s.db.WithContext(ensureContext(ctx)), entry)
}

// AppendTx stores an audit entry inside the caller's transaction. Mutations
// that change field or recipient state use this so a failed audit write rolls
// the whole mutation back: both or neither.
func (s *AuditService) AppendTx(tx *gorm.DB, entry AuditEntry) error {
	return appendAudit(tx, entry)
}

func appendAudit(tx *gorm.DB, entry AuditEntry) error {
	if strings.TrimSpace(entry.EnvelopeID) == "" {
		return errors.New("audit service: envelope id is required")
	}
	if strings.TrimSpace(entry.Type) == "" {
		return errors.New("audit service: event type is required")
	}

	var payload []byte
	if entry.Data != nil {
		encoded, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("audit service: marshal data: %w", err)
		}
		payload = encoded
	}

	log := models.EnvelopeAuditLog{
		EnvelopeID:  entry.EnvelopeID,
		Type:        entry.Type,
		UserID:      entry.UserID,
		RecipientID: entry.RecipientID,
		Email:       strings.TrimSpace(entry.Email),
		Name:        strings.TrimSpace(entry.Name),
		IPAddress:   strings.TrimSpace(entry.IPAddress),
		UserAgent:   strings.TrimSpace(entry.UserAgent),
		Data:        payload,
	}

	return tx.Create(&log).Error
}

// auditCursor is the opaque continuation token for Find.
type auditCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func encodeAuditCursor(entry models.EnvelopeAuditLog) string {
	raw, _ := json.Marshal(auditCursor{CreatedAt: entry.CreatedAt, ID: entry.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeAuditCursor(cursor string) (auditCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return auditCursor{}, apperrors.ErrBadRequest.WithMessage("malformed audit cursor")
	}
	var decoded auditCursor
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return auditCursor{}, apperrors.ErrBadRequest.WithMessage("malformed audit cursor")
	}
	return decoded, nil
}

// Find returns a page of audit entries for an envelope in stable
// (created_at, id) ascending order, with an opaque cursor for continuation.
// Pass orderDesc for newest-first activity views.
func (s *AuditService) Find(ctx context.Context, envelopeID, cursor string, limit int, orderDesc bool) ([]models.EnvelopeAuditLog, string, error) {
	ctx = ensureContext(ctx)

	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}

	query := s.db.WithContext(ctx).
		Model(&models.EnvelopeAuditLog{}).
		Where("envelope_id = ?", envelopeID)

	if cursor != "" {
		decoded, err := decodeAuditCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		if orderDesc {
			query = query.Where(
				"(created_at < ?) OR (created_at = ? AND id < ?)",
				decoded.CreatedAt, decoded.CreatedAt, decoded.ID,
			)
		} else {
			query = query.Where(
				"(created_at > ?) OR (created_at = ? AND id > ?)",
				decoded.CreatedAt, decoded.CreatedAt, decoded.ID,
			)
		}
	}

	order := "created_at ASC, id ASC"
	if orderDesc {
		order = "created_at DESC, id DESC"
	}

	var entries []models.EnvelopeAuditLog
	if err := query.Order(order).Limit(limit + 1).Find(&entries).Error; err != nil {
		return nil, "", fmt.Errorf("audit service: find: %w", err)
	}

	nextCursor := ""
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = encodeAuditCursor(entries[len(entries)-1])
	}

	return entries, nextCursor, nil
}

// Replay returns every entry for an envelope in chronological order. The
// certificate pipeline reconstructs history solely through this.
func (s *AuditService) Replay(ctx context.Context, envelopeID string) ([]models.EnvelopeAuditLog, error) {
	var entries []models.EnvelopeAuditLog
	err := s.db.WithContext(ensureContext(ctx)).
		Where("envelope_id = ?", envelopeID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: replay: %w", err)
	}
	return entries, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf"
	"github.com/documenso/documenso-sub011/internal/storage"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/logger"
	"github.com/documenso/documenso-sub011/pkg/mail"
	"github.com/documenso/documenso-sub011/pkg/metrics"
)

// SealOption customises SealService behaviour.
type SealOption func(*SealService)

// WithSealClock injects a custom clock, primarily for testing.
func WithSealClock(clock func() time.Time) SealOption {
	return func(s *SealService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSealBaseURL configures the base URL embedded in the certificate's
// verification QR code.
func WithSealBaseURL(url string) SealOption {
	return func(s *SealService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// SealService runs the completion pipeline: it renders signed values into
// each payload item, generates the completion certificate and the audit-log
// artifact, and performs the single guarded transition to COMPLETED.
type SealService struct {
	db      *gorm.DB
	blobs   storage.BlobStore
	engine  pdf.Engine
	audit   *AuditService
	mailer  mail.Mailer
	baseURL string
	now     func() time.Time
}

// NewSealService constructs a SealService.
func NewSealService(db *gorm.DB, blobs storage.BlobStore, engine pdf.Engine, audit *AuditService, mailer mail.Mailer, opts ...SealOption) (*SealService, error) {
	if db == nil {
		return nil, errors.New("seal service: db is required")
	}
	if blobs == nil {
		return nil, errors.New("seal service: blob store is required")
	}
	if engine == nil {
		return nil, errors.New("seal service: pdf engine is required")
	}
	if audit == nil {
		return nil, errors.New("seal service: audit service is required")
	}

	service := &SealService{
		db:     db,
		blobs:  blobs,
		engine: engine,
		audit:  audit,
		mailer: mailer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Seal finalizes a fully signed envelope. Sealed payloads are always
// re-rendered from the original blobs, so a partially failed seal can be
// retried and a COMPLETED envelope with missing artifacts can be recovered;
// re-running against an intact COMPLETED envelope returns ErrAlreadySealed.
func (s *SealService) Seal(ctx context.Context, envelopeID string) error {
	ctx = ensureContext(ctx)

	var envelope models.Envelope
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Recipients").
		Preload("Fields").
		Preload("Fields.Signature").
		First(&envelope, "id = ?", envelopeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound.WithMessage("envelope not found")
	}
	if err != nil {
		return fmt.Errorf("seal service: load envelope: %w", err)
	}

	if envelope.Type != models.EnvelopeTypeDocument {
		return apperrors.ErrValidation.WithMessage("only DOCUMENT envelopes can be sealed")
	}

	reseal := envelope.Status == models.EnvelopeStatusCompleted
	if reseal && artifactsIntact(&envelope) {
		return ErrAlreadySealed
	}
	if !reseal && envelope.Status != models.EnvelopeStatusPending {
		return apperrors.ErrValidation.WithMessage(
			fmt.Sprintf("a %s envelope cannot be sealed", envelope.Status))
	}

	for _, recipient := range envelope.Recipients {
		if recipient.Role.BlocksCompletion() && recipient.SigningStatus != models.SigningStatusSigned {
			return apperrors.ErrDocumentNotComplete.WithMessage(
				fmt.Sprintf("recipient %s has not completed signing", recipient.ID))
		}
	}

	completedAt := envelope.CompletedAt
	if completedAt == nil {
		now := s.now()
		completedAt = &now
	}

	sealedIDs, err := s.renderItems(ctx, &envelope)
	if err != nil {
		metrics.EnvelopesSealed.WithLabelValues("error").Inc()
		return err
	}

	certificateID, err := s.renderCertificate(ctx, &envelope, *completedAt)
	if err != nil {
		metrics.EnvelopesSealed.WithLabelValues("error").Inc()
		return err
	}

	auditLogID, err := s.renderAuditLog(ctx, &envelope)
	if err != nil {
		metrics.EnvelopesSealed.WithLabelValues("error").Inc()
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range envelope.Items {
			if err := tx.Model(&models.EnvelopeItem{}).
				Where("id = ?", item.ID).
				Update("sealed_blob_id", sealedIDs[i]).Error; err != nil {
				return fmt.Errorf("seal service: store sealed item: %w", err)
			}
		}

		updates := map[string]any{
			"certificate_blob_id": certificateID,
			"audit_log_blob_id":   auditLogID,
		}

		if reseal {
			if err := tx.Model(&models.Envelope{}).
				Where("id = ?", envelope.ID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("seal service: restore artifacts: %w", err)
			}
		} else {
			updates["status"] = models.EnvelopeStatusCompleted
			updates["completed_at"] = *completedAt

			// The status guard makes the transition happen exactly once even
			// when concurrent completions both observe zero remaining
			// blockers.
			result := tx.Model(&models.Envelope{}).
				Where("id = ? AND status <> ?", envelope.ID, models.EnvelopeStatusCompleted).
				Updates(updates)
			if result.Error != nil {
				return fmt.Errorf("seal service: complete envelope: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return ErrAlreadySealed
			}
		}

		entry := AuditEntry{
			EnvelopeID: envelope.ID,
			Type:       models.AuditEventEnvelopeSealed,
			Data:       map[string]any{"reseal": reseal},
		}
		return s.audit.AppendTx(tx, entry)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySealed) {
			return ErrAlreadySealed
		}
		metrics.EnvelopesSealed.WithLabelValues("error").Inc()
		return err
	}

	outcome := "sealed"
	if reseal {
		outcome = "resealed"
	}
	metrics.EnvelopesSealed.WithLabelValues(outcome).Inc()

	if !reseal {
		s.notifyCompleted(ctx, &envelope)
	}
	return nil
}

// renderItems produces a sealed blob per payload item with every inserted
// field rendered at its page position. Documents are flattened so the sealed
// output carries no interactive form.
func (s *SealService) renderItems(ctx context.Context, envelope *models.Envelope) ([]string, error) {
	fieldsByItem := make(map[string][]models.Field)
	for _, field := range envelope.Fields {
		fieldsByItem[field.ItemID] = append(fieldsByItem[field.ItemID], field)
	}

	sealedIDs := make([]string, len(envelope.Items))
	var errs error

	for i, item := range envelope.Items {
		data, err := s.blobs.Get(ctx, item.BlobID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seal service: item %s payload: %w", item.ID, err))
			continue
		}

		doc, err := s.engine.Load(data)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seal service: item %s load: %w", item.ID, err))
			continue
		}

		fields := fieldsByItem[item.ID]
		sort.Slice(fields, func(a, b int) bool {
			if fields[a].Page != fields[b].Page {
				return fields[a].Page < fields[b].Page
			}
			if fields[a].PositionY != fields[b].PositionY {
				return fields[a].PositionY < fields[b].PositionY
			}
			return fields[a].PositionX < fields[b].PositionX
		})

		for _, field := range fields {
			if !field.Inserted {
				continue
			}
			if err := doc.Overlay(field.Page, field.PositionX, field.PositionY, sealedFieldValue(&field)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seal service: item %s field %s: %w", item.ID, field.ID, err))
			}
		}

		doc.FlattenForm()

		payload, err := doc.Save()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seal service: item %s save: %w", item.ID, err))
			continue
		}

		id, err := s.blobs.Put(ctx, payload)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("seal service: item %s store: %w", item.ID, err))
			continue
		}
		sealedIDs[i] = id
	}

	if errs != nil {
		return nil, errs
	}
	return sealedIDs, nil
}

// sealedFieldValue is the text rendered into the sealed payload for a signed
// field. Drawn signatures carry their data URL unchanged so rendering is
// deterministic across reseals.
func sealedFieldValue(field *models.Field) string {
	if field.Type == models.FieldTypeSignature && field.Signature != nil {
		if field.Signature.TypedValue != "" {
			return field.Signature.TypedValue
		}
		return field.Signature.ImageBase64
	}
	return field.CustomText
}

func (s *SealService) renderCertificate(ctx context.Context, envelope *models.Envelope, completedAt time.Time) (string, error) {
	doc := s.engine.Compose(1)
	width, height, err := doc.PageSize(1)
	if err != nil {
		return "", fmt.Errorf("seal service: certificate page: %w", err)
	}

	writer := newLineWriter(doc, width, height)
	writer.line("Signing Certificate")
	writer.line(fmt.Sprintf("Envelope: %s", envelope.Title))
	writer.line(fmt.Sprintf("Envelope ID: %s", envelope.ID))
	writer.line(fmt.Sprintf("Completed: %s", completedAt.UTC().Format(time.RFC3339)))
	writer.line("")

	recipients := SortRecipients(envelope.Recipients)
	for _, recipient := range recipients {
		signedAt := "n/a"
		if recipient.SignedAt != nil {
			signedAt = recipient.SignedAt.UTC().Format(time.RFC3339)
		}
		writer.line(fmt.Sprintf("%s  %s <%s>  %s  %s",
			recipient.Role, recipient.Name, recipient.Email, recipient.SigningStatus, signedAt))
	}

	if s.baseURL != "" {
		code, err := qrcode.New(fmt.Sprintf("%s/verify/%s", s.baseURL, envelope.ID), qrcode.Medium)
		if err != nil {
			return "", fmt.Errorf("seal service: verification code: %w", err)
		}
		writer.line("")
		writer.line("Scan to verify:")
		for _, row := range strings.Split(strings.TrimRight(code.ToSmallString(false), "\n"), "\n") {
			writer.line(row)
		}
	}
	if writer.err != nil {
		return "", fmt.Errorf("seal service: certificate: %w", writer.err)
	}

	payload, err := doc.Save()
	if err != nil {
		return "", fmt.Errorf("seal service: certificate save: %w", err)
	}
	return s.blobs.Put(ctx, payload)
}

func (s *SealService) renderAuditLog(ctx context.Context, envelope *models.Envelope) (string, error) {
	entries, err := s.audit.Replay(ctx, envelope.ID)
	if err != nil {
		return "", fmt.Errorf("seal service: replay audit: %w", err)
	}

	doc := s.engine.Compose(1)
	width, height, err := doc.PageSize(1)
	if err != nil {
		return "", fmt.Errorf("seal service: audit page: %w", err)
	}

	writer := newLineWriter(doc, width, height)
	writer.line(fmt.Sprintf("Audit Log for %s", envelope.Title))
	writer.line("")
	for _, entry := range entries {
		actor := entry.Email
		if actor == "" && entry.UserID != nil {
			actor = *entry.UserID
		}
		writer.line(fmt.Sprintf("%s  %s  %s",
			entry.CreatedAt.UTC().Format(time.RFC3339), entry.Type, actor))
	}
	if writer.err != nil {
		return "", fmt.Errorf("seal service: audit artifact: %w", writer.err)
	}

	payload, err := doc.Save()
	if err != nil {
		return "", fmt.Errorf("seal service: audit save: %w", err)
	}
	return s.blobs.Put(ctx, payload)
}

// lineWriter lays successive text lines onto a document, adding pages as the
// current one fills.
type lineWriter struct {
	doc    pdf.Document
	width  float64
	height float64
	page   int
	y      float64
	err    error
}

const (
	lineWriterMargin = 36.0
	lineWriterStep   = 14.0
)

func newLineWriter(doc pdf.Document, width, height float64) *lineWriter {
	return &lineWriter{doc: doc, width: width, height: height, page: 1, y: lineWriterMargin}
}

func (w *lineWriter) line(value string) {
	if w.err != nil {
		return
	}
	if w.y > w.height-lineWriterMargin {
		w.page = w.doc.AddPage(w.width, w.height)
		w.y = lineWriterMargin
	}
	if value != "" {
		w.err = w.doc.Overlay(w.page, lineWriterMargin, w.y, value)
	}
	w.y += lineWriterStep
}

func artifactsIntact(envelope *models.Envelope) bool {
	if envelope.CertificateBlobID == nil || envelope.AuditLogBlobID == nil {
		return false
	}
	for _, item := range envelope.Items {
		if item.SealedBlobID == nil || *item.SealedBlobID == "" {
			return false
		}
	}
	return true
}

func (s *SealService) notifyCompleted(ctx context.Context, envelope *models.Envelope) {
	if s.mailer == nil {
		return
	}

	seen := map[string]bool{}
	var targets []struct{ name, email string }

	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", envelope.UserID).Error; err == nil {
		targets = append(targets, struct{ name, email string }{owner.Name, owner.Email})
		seen[strings.ToLower(owner.Email)] = true
	}
	for _, recipient := range envelope.Recipients {
		key := strings.ToLower(recipient.Email)
		if seen[key] {
			continue
		}
		seen[key] = true
		targets = append(targets, struct{ name, email string }{recipient.Name, recipient.Email})
	}

	for _, target := range targets {
		err := mail.Notify(ctx, s.mailer, target.email, mail.TemplateCompleted, mail.TemplatePayload{
			RecipientName: target.name,
			EnvelopeTitle: envelope.Title,
		})
		if err != nil {
			logger.WithModule("seal").Warn("completion email failed",
				zap.String("envelope_id", envelope.ID),
				zap.String("to", target.email),
				zap.Error(err),
			)
		}
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/documenso/documenso-sub011/internal/fieldmeta"
	"github.com/documenso/documenso-sub011/internal/models"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/logger"
	"github.com/documenso/documenso-sub011/pkg/mail"
	"github.com/documenso/documenso-sub011/pkg/metrics"
)

// SigningOption customises SigningService behaviour.
type SigningOption func(*SigningService)

// WithSigningClock injects a custom clock, primarily for testing.
func WithSigningClock(clock func() time.Time) SigningOption {
	return func(s *SigningService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSigningBaseURL configures the base URL used in signing hyperlinks.
func WithSigningBaseURL(url string) SigningOption {
	return func(s *SigningService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// SigningService implements the field signing protocol and recipient
// completion on top of the token gateway and the authorization resolver.
type SigningService struct {
	db      *gorm.DB
	audit   *AuditService
	sealer  *SealService
	mailer  mail.Mailer
	baseURL string
	now     func() time.Time
}

// NewSigningService constructs a SigningService. The sealer may be nil when
// completion should not trigger the sealing pipeline (tests).
func NewSigningService(db *gorm.DB, audit *AuditService, sealer *SealService, mailer mail.Mailer, opts ...SigningOption) (*SigningService, error) {
	if db == nil {
		return nil, errors.New("signing service: db is required")
	}
	if audit == nil {
		return nil, errors.New("signing service: audit service is required")
	}

	service := &SigningService{
		db:     db,
		audit:  audit,
		sealer: sealer,
		mailer: mailer,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// SignFieldInput is the payload of a signField mutation.
type SignFieldInput struct {
	Token    string
	FieldID  string
	Value    string
	IsBase64 bool
	Auth     ActionAuthInput
	Meta     RequestMeta
}

// SignField validates and persists a value into a field, transitioning it
// UNSIGNED -> SIGNED. All validation happens before any write; the field
// update and its audit entry commit together or not at all.
func (s *SigningService) SignField(ctx context.Context, input SignFieldInput) (*models.Field, error) {
	ctx = ensureContext(ctx)

	var signed *models.Field

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		field, err := s.signFieldTx(tx, input)
		if err != nil {
			return err
		}
		signed = field
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.FieldsSigned.WithLabelValues("signed", string(signed.Type)).Inc()
	return signed, nil
}

// signFieldTx is the transactional body of SignField. Direct template
// materialization calls it inside its own transaction so clone, values, and
// completion commit together.
func (s *SigningService) signFieldTx(tx *gorm.DB, input SignFieldInput) (*models.Field, error) {
	recipient, envelope, err := resolveTokenForAction(tx, input.Token)
	if err != nil {
		return nil, err
	}

	// A row-level lock serializes concurrent writes to the same field so
	// the persisted value and its audit entry stay consistent.
	var field models.Field
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&field, "id = ?", strings.TrimSpace(input.FieldID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("field not found")
	}
	if err != nil {
		return nil, fmt.Errorf("signing service: load field: %w", err)
	}

	if err := authorizeField(recipient, &field); err != nil {
		return nil, err
	}

	derived, err := DeriveRecipientAuth(envelope, recipient)
	if err != nil {
		return nil, fmt.Errorf("signing service: derive auth: %w", err)
	}
	if err := VerifyActionAuth(derived.ActionAuth, envelope, input.Auth, input.Meta); err != nil {
		return nil, err
	}

	meta, err := fieldmeta.Parse(field.Type, field.FieldMeta)
	if err != nil {
		return nil, fmt.Errorf("signing service: parse field meta: %w", err)
	}
	if err := meta.Validate(input.Value); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	customText, signature, err := s.renderFieldValue(envelope, &field, meta, input)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"inserted":    true,
		"custom_text": customText,
	}
	if err := tx.Model(&field).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("signing service: update field: %w", err)
	}

	if signature != nil {
		// Re-signing replaces the previous signature.
		if err := tx.Where("field_id = ?", field.ID).Delete(&models.Signature{}).Error; err != nil {
			return nil, fmt.Errorf("signing service: clear signature: %w", err)
		}
		if err := tx.Create(signature).Error; err != nil {
			return nil, fmt.Errorf("signing service: create signature: %w", err)
		}
		field.Signature = signature
	}

	field.Inserted = true
	field.CustomText = customText

	entry := AuditEntry{
		EnvelopeID:  envelope.ID,
		Type:        models.AuditEventFieldSigned,
		RecipientID: strPtr(recipient.ID),
		Email:       recipient.Email,
		Name:        recipient.Name,
		IPAddress:   input.Meta.IPAddress,
		UserAgent:   input.Meta.UserAgent,
		Data: map[string]any{
			"field_id":   field.ID,
			"field_type": field.Type,
		},
	}
	if err := s.audit.AppendTx(tx, entry); err != nil {
		return nil, fmt.Errorf("signing service: audit: %w", err)
	}

	return &field, nil
}

// UnsignField reverts a field to its unsigned state. Unsigning an already
// unsigned field is a no-op, not an error.
func (s *SigningService) UnsignField(ctx context.Context, token, fieldID string, meta RequestMeta) error {
	ctx = ensureContext(ctx)

	var unsigned *models.Field

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipient, envelope, err := resolveTokenForAction(tx, token)
		if err != nil {
			return err
		}

		var field models.Field
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&field, "id = ?", strings.TrimSpace(fieldID)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("field not found")
		}
		if err != nil {
			return fmt.Errorf("signing service: load field: %w", err)
		}

		if err := authorizeField(recipient, &field); err != nil {
			return err
		}

		if !field.Inserted {
			return nil
		}

		updates := map[string]any{
			"inserted":    false,
			"custom_text": "",
		}
		if err := tx.Model(&field).Updates(updates).Error; err != nil {
			return fmt.Errorf("signing service: update field: %w", err)
		}
		if err := tx.Where("field_id = ?", field.ID).Delete(&models.Signature{}).Error; err != nil {
			return fmt.Errorf("signing service: delete signature: %w", err)
		}

		entry := AuditEntry{
			EnvelopeID:  envelope.ID,
			Type:        models.AuditEventFieldUnsigned,
			RecipientID: strPtr(recipient.ID),
			Email:       recipient.Email,
			Name:        recipient.Name,
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			Data: map[string]any{
				"field_id":   field.ID,
				"field_type": field.Type,
			},
		}
		if err := s.audit.AppendTx(tx, entry); err != nil {
			return fmt.Errorf("signing service: audit: %w", err)
		}

		unsigned = &field
		return nil
	})
	if err != nil {
		return err
	}

	if unsigned != nil {
		metrics.FieldsSigned.WithLabelValues("unsigned", string(unsigned.Type)).Inc()
	}
	return nil
}

// ValidateFieldsInserted confirms every required field of the recipient has
// been signed. On failure it names the first unfulfilled field in document
// page/position order (top-to-bottom, left-to-right), the same order the UI
// uses to focus the next pending field.
func (s *SigningService) ValidateFieldsInserted(ctx context.Context, recipientID string) error {
	return validateFieldsInserted(s.db.WithContext(ensureContext(ctx)), recipientID)
}

func validateFieldsInserted(tx *gorm.DB, recipientID string) error {
	var first models.Field
	err := tx.
		Joins("JOIN envelope_items ON envelope_items.id = fields.item_id").
		Where("fields.recipient_id = ? AND fields.required = ? AND fields.inserted = ?", recipientID, true, false).
		Order("envelope_items.sort_order ASC, fields.page ASC, fields.position_y ASC, fields.position_x ASC").
		First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("signing service: validate fields: %w", err)
	}

	return apperrors.NewValidation(
		fmt.Sprintf("required %s field %s on page %d has not been completed", first.Type, first.ID, first.Page))
}

// CompleteRecipientInput is the payload of a recipient completion.
type CompleteRecipientInput struct {
	Token string

	// NextSignerEmail/Name dictate the identity of the next sequential
	// recipient when the envelope allows it.
	NextSignerEmail string
	NextSignerName  string

	Auth ActionAuthInput
	Meta RequestMeta
}

// CompleteRecipient marks the token's recipient as finished. In sequential
// mode the recipient must be the next actionable one; completing out of
// order fails even though individual field mutations are not order-gated.
// When the last blocking recipient completes, the sealing pipeline runs.
func (s *SigningService) CompleteRecipient(ctx context.Context, input CompleteRecipientInput) (*models.Recipient, error) {
	ctx = ensureContext(ctx)

	var outcome *completionOutcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.completeRecipientTx(tx, input)
		if err != nil {
			return err
		}
		outcome = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.finishCompletion(ctx, outcome)
	return &outcome.recipient, nil
}

// completionOutcome carries the side effects a committed completion owes:
// who to notify next and whether the envelope is ready to seal.
type completionOutcome struct {
	recipient  models.Recipient
	envelopeID string
	title      string
	notify     *models.Recipient
	sealDue    bool
}

// completeRecipientTx is the transactional body of CompleteRecipient. The
// caller runs finishCompletion with the returned outcome after committing.
func (s *SigningService) completeRecipientTx(tx *gorm.DB, input CompleteRecipientInput) (*completionOutcome, error) {
	recipient, envelope, err := resolveTokenForCompletion(tx, input.Token)
	if err != nil {
		return nil, err
	}
	if recipient.SigningStatus == models.SigningStatusSigned {
		return &completionOutcome{recipient: *recipient, envelopeID: envelope.ID}, nil
	}

	// The sibling rows are read under row locks so two concurrent
	// completions of the last two recipients serialize: the later one
	// observes the earlier commit and takes on the seal.
	var siblings []models.Recipient
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("envelope_id = ?", envelope.ID).Find(&siblings).Error; err != nil {
		return nil, fmt.Errorf("signing service: load recipients: %w", err)
	}

	if !IsRecipientTurn(envelope.SigningOrderMode, siblings, recipient.ID) {
		return nil, apperrors.ErrValidation.WithInternal(ErrOrderViolation).
			WithMessage("earlier recipients must complete before this one")
	}

	if err := validateFieldsInserted(tx, recipient.ID); err != nil {
		return nil, err
	}

	derived, err := DeriveRecipientAuth(envelope, recipient)
	if err != nil {
		return nil, fmt.Errorf("signing service: derive auth: %w", err)
	}
	if err := VerifyActionAuth(derived.ActionAuth, envelope, input.Auth, input.Meta); err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]any{
		"signing_status": models.SigningStatusSigned,
		"signed_at":      now,
	}
	if err := tx.Model(recipient).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("signing service: complete recipient: %w", err)
	}
	recipient.SigningStatus = models.SigningStatusSigned
	recipient.SignedAt = &now

	entry := AuditEntry{
		EnvelopeID:  envelope.ID,
		Type:        models.AuditEventRecipientCompleted,
		RecipientID: strPtr(recipient.ID),
		Email:       recipient.Email,
		Name:        recipient.Name,
		IPAddress:   input.Meta.IPAddress,
		UserAgent:   input.Meta.UserAgent,
		Data:        map[string]any{"role": recipient.Role},
	}
	if err := s.audit.AppendTx(tx, entry); err != nil {
		return nil, fmt.Errorf("signing service: audit: %w", err)
	}

	// Mirror the status change into the local snapshot before deciding
	// whether the envelope is now fully signed.
	for i := range siblings {
		if siblings[i].ID == recipient.ID {
			siblings[i].SigningStatus = models.SigningStatusSigned
		}
	}

	outcome := &completionOutcome{
		recipient:  *recipient,
		envelopeID: envelope.ID,
		title:      envelope.Title,
		sealDue:    remainingBlockers(siblings) == 0,
	}

	next := NextRecipientAfter(siblings, recipient.ID)
	if next != nil && envelope.SigningOrderMode == models.SigningOrderSequential {
		if envelope.AllowDictateNextSigner && strings.TrimSpace(input.NextSignerEmail) != "" {
			if err := s.dictateNextSigner(tx, envelope, recipient, next, input); err != nil {
				return nil, err
			}
		}
		outcome.notify = next
	}

	return outcome, nil
}

func (s *SigningService) finishCompletion(ctx context.Context, outcome *completionOutcome) {
	if outcome == nil {
		return
	}

	metrics.RecipientsCompleted.WithLabelValues(string(outcome.recipient.Role)).Inc()

	if outcome.notify != nil {
		s.sendSigningRequest(ctx, outcome.envelopeID, outcome.title, outcome.notify)
	}

	if outcome.sealDue && s.sealer != nil {
		if err := s.sealer.Seal(ctx, outcome.envelopeID); err != nil && !errors.Is(err, ErrAlreadySealed) {
			// Completion stands; sealing is recoverable via reseal.
			logger.WithModule("signing").Error("seal after completion failed",
				zap.String("envelope_id", outcome.envelopeID),
				zap.Error(err),
			)
		}
	}
}

func (s *SigningService) dictateNextSigner(tx *gorm.DB, envelope *models.Envelope, current *models.Recipient, next *models.Recipient, input CompleteRecipientInput) error {
	email := strings.TrimSpace(strings.ToLower(input.NextSignerEmail))
	name := strings.TrimSpace(input.NextSignerName)

	updates := map[string]any{"email": email}
	if name != "" {
		updates["name"] = name
	}
	if err := tx.Model(next).Updates(updates).Error; err != nil {
		return fmt.Errorf("signing service: dictate next signer: %w", err)
	}
	next.Email = email
	if name != "" {
		next.Name = name
	}

	entry := AuditEntry{
		EnvelopeID:  envelope.ID,
		Type:        models.AuditEventRecipientDictated,
		RecipientID: strPtr(current.ID),
		Email:       current.Email,
		Name:        current.Name,
		IPAddress:   input.Meta.IPAddress,
		UserAgent:   input.Meta.UserAgent,
		Data: map[string]any{
			"next_recipient_id": next.ID,
			"next_email":        email,
		},
	}
	return s.audit.AppendTx(tx, entry)
}

// RejectEnvelope lets a signing recipient reject the envelope with a reason.
// Rejection is terminal and short-circuits completion.
func (s *SigningService) RejectEnvelope(ctx context.Context, token, reason string, meta RequestMeta) error {
	ctx = ensureContext(ctx)

	var (
		envelopeID string
		title      string
		ownerID    string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recipient, envelope, err := resolveTokenForAction(tx, token)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"signing_status":   models.SigningStatusRejected,
			"rejection_reason": strings.TrimSpace(reason),
		}
		if err := tx.Model(recipient).Updates(updates).Error; err != nil {
			return fmt.Errorf("signing service: reject recipient: %w", err)
		}

		// The guard keeps a rejection from overriding a concurrent terminal
		// transition.
		result := tx.Model(&models.Envelope{}).
			Where("id = ? AND status = ?", envelope.ID, models.EnvelopeStatusPending).
			Update("status", models.EnvelopeStatusRejected)
		if result.Error != nil {
			return fmt.Errorf("signing service: reject envelope: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrConflict.WithMessage("envelope is no longer open for signing")
		}

		entry := AuditEntry{
			EnvelopeID:  envelope.ID,
			Type:        models.AuditEventEnvelopeRejected,
			RecipientID: strPtr(recipient.ID),
			Email:       recipient.Email,
			Name:        recipient.Name,
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			Data:        map[string]any{"reason": strings.TrimSpace(reason)},
		}
		if err := s.audit.AppendTx(tx, entry); err != nil {
			return fmt.Errorf("signing service: audit: %w", err)
		}

		envelopeID = envelope.ID
		title = envelope.Title
		ownerID = envelope.UserID
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyOwnerRejected(ctx, envelopeID, title, ownerID, reason)
	return nil
}

// renderFieldValue computes the persisted representation of a signed value.
// Date fields ignore the caller-supplied text and stamp the server clock
// formatted per document settings. Signature fields produce a Signature row.
func (s *SigningService) renderFieldValue(envelope *models.Envelope, field *models.Field, meta fieldmeta.Meta, input SignFieldInput) (string, *models.Signature, error) {
	switch m := meta.(type) {
	case *fieldmeta.DateMeta:
		return s.formatTimestamp(envelope), nil, nil

	case *fieldmeta.SignatureMeta:
		signature := &models.Signature{
			FieldID:     field.ID,
			RecipientID: field.RecipientID,
		}
		if input.IsBase64 || strings.HasPrefix(input.Value, "data:") {
			signature.ImageBase64 = input.Value
		} else {
			if !m.AllowTyped {
				return "", nil, apperrors.NewValidation("this signature field does not accept typed signatures")
			}
			signature.TypedValue = strings.TrimSpace(input.Value)
		}
		return "", signature, nil

	case *fieldmeta.CheckboxMeta:
		selected, err := m.Selected(input.Value)
		if err != nil {
			return "", nil, apperrors.NewValidation(err.Error())
		}
		if field.Required && len(selected) == 0 {
			return "", nil, apperrors.NewValidation("at least one checkbox option must be selected")
		}
		canonical, err := json.Marshal(selected)
		if err != nil {
			return "", nil, fmt.Errorf("signing service: encode checkbox selection: %w", err)
		}
		return string(canonical), nil, nil

	default:
		value := strings.TrimSpace(input.Value)
		if field.Required && value == "" {
			return "", nil, apperrors.NewValidation(
				fmt.Sprintf("a value is required for this %s field", field.Type))
		}
		return value, nil, nil
	}
}

func (s *SigningService) formatTimestamp(envelope *models.Envelope) string {
	layout := envelope.DateFormat
	if layout == "" {
		layout = "2006-01-02 15:04"
	}

	loc := time.UTC
	if envelope.Timezone != "" {
		if parsed, err := time.LoadLocation(envelope.Timezone); err == nil {
			loc = parsed
		}
	}

	return s.now().In(loc).Format(layout)
}

func (s *SigningService) sendSigningRequest(ctx context.Context, envelopeID, title string, recipient *models.Recipient) {
	if s.mailer == nil {
		return
	}

	err := mail.Notify(ctx, s.mailer, recipient.Email, mail.TemplateSigningRequest, mail.TemplatePayload{
		RecipientName: recipient.Name,
		EnvelopeTitle: title,
		SigningLink:   signingLink(s.baseURL, recipient.Token),
	})
	if err != nil {
		logger.WithModule("signing").Warn("signing request email failed",
			zap.String("envelope_id", envelopeID),
			zap.String("recipient_id", recipient.ID),
			zap.Error(err),
		)
		return
	}

	_ = s.db.WithContext(ctx).Model(&models.Recipient{}).
		Where("id = ?", recipient.ID).
		Update("send_status", models.SendStatusSent).Error
}

func (s *SigningService) notifyOwnerRejected(ctx context.Context, envelopeID, title, ownerID, reason string) {
	if s.mailer == nil {
		return
	}

	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", ownerID).Error; err != nil {
		return
	}

	err := mail.Notify(ctx, s.mailer, owner.Email, mail.TemplateRejected, mail.TemplatePayload{
		RecipientName: owner.Name,
		EnvelopeTitle: title,
		Reason:        reason,
	})
	if err != nil {
		logger.WithModule("signing").Warn("rejection email failed",
			zap.String("envelope_id", envelopeID),
			zap.Error(err),
		)
	}
}

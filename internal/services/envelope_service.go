package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf"
	"github.com/documenso/documenso-sub011/internal/storage"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/logger"
	pkgmail "github.com/documenso/documenso-sub011/pkg/mail"
)

// EnvelopeOption customises EnvelopeService behaviour.
type EnvelopeOption func(*EnvelopeService)

// WithEnvelopeClock injects a custom clock, primarily for testing.
func WithEnvelopeClock(clock func() time.Time) EnvelopeOption {
	return func(s *EnvelopeService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithEnvelopeBaseURL configures the base URL used in signing hyperlinks.
func WithEnvelopeBaseURL(url string) EnvelopeOption {
	return func(s *EnvelopeService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// EnvelopeService owns the envelope lifecycle outside the signing protocol:
// creation, structural edits while DRAFT, distribution, direct links, and
// privileged deletion.
type EnvelopeService struct {
	db      *gorm.DB
	blobs   storage.BlobStore
	engine  pdf.Engine
	audit   *AuditService
	mailer  pkgmail.Mailer
	baseURL string
	now     func() time.Time
}

// NewEnvelopeService constructs an EnvelopeService.
func NewEnvelopeService(db *gorm.DB, blobs storage.BlobStore, engine pdf.Engine, audit *AuditService, mailer pkgmail.Mailer, opts ...EnvelopeOption) (*EnvelopeService, error) {
	if db == nil {
		return nil, errors.New("envelope service: db is required")
	}
	if blobs == nil {
		return nil, errors.New("envelope service: blob store is required")
	}
	if engine == nil {
		return nil, errors.New("envelope service: pdf engine is required")
	}
	if audit == nil {
		return nil, errors.New("envelope service: audit service is required")
	}

	service := &EnvelopeService{
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

// CreateItemInput is one binary payload to attach at creation time.
type CreateItemInput struct {
	Title string
	Data  []byte
}

// CreateRecipientInput describes one party to attach at creation time.
type CreateRecipientInput struct {
	Role         models.RecipientRole
	Email        string
	Name         string
	SigningOrder *int
	AuthOptions  *models.RecipientAuthOptions
}

// CreateFieldInput describes one field to place at creation time. ItemIndex
// and RecipientIndex refer to positions in the creation payload.
type CreateFieldInput struct {
	RecipientIndex int
	ItemIndex      int
	Type           models.FieldType
	Page           int
	PositionX      float64
	PositionY      float64
	Width          float64
	Height         float64
	Required       bool
	FieldMeta      []byte
}

// CreateEnvelopeInput is the payload for envelope or template creation.
type CreateEnvelopeInput struct {
	UserID     string
	Type       models.EnvelopeType
	Title      string
	ExternalID string

	SigningOrderMode       models.SigningOrderMode
	AllowDictateNextSigner bool

	AccessAuth models.AuthMethod
	ActionAuth models.AuthMethod

	// ActionAuthPassword is hashed before storage when ActionAuth is PASSWORD.
	ActionAuthPassword string

	DateFormat string
	Timezone   string

	FormValues map[string]string

	Items      []CreateItemInput
	Recipients []CreateRecipientInput
	Fields     []CreateFieldInput
}

// Create stores a new envelope in DRAFT with its items, recipients, and
// fields. Every recipient gets a fresh, unguessable token.
func (s *EnvelopeService) Create(ctx context.Context, input CreateEnvelopeInput) (*models.Envelope, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewBadRequest("an owning user is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewBadRequest("a title is required")
	}
	if input.Type != models.EnvelopeTypeDocument && input.Type != models.EnvelopeTypeTemplate {
		return nil, apperrors.NewBadRequest("envelope type must be DOCUMENT or TEMPLATE")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.NewBadRequest("at least one payload item is required")
	}
	for i, r := range input.Recipients {
		if strings.TrimSpace(r.Email) == "" {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("recipient %d is missing an email", i))
		}
	}
	for i, f := range input.Fields {
		if f.RecipientIndex < 0 || f.RecipientIndex >= len(input.Recipients) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("field %d references an unknown recipient", i))
		}
		if f.ItemIndex < 0 || f.ItemIndex >= len(input.Items) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("field %d references an unknown item", i))
		}
	}

	mode := input.SigningOrderMode
	if mode == "" {
		mode = models.SigningOrderParallel
	}

	envelope := models.Envelope{
		Type:                   input.Type,
		Status:                 models.EnvelopeStatusDraft,
		Title:                  strings.TrimSpace(input.Title),
		ExternalID:             strPtr(strings.TrimSpace(input.ExternalID)),
		UserID:                 input.UserID,
		SigningOrderMode:       mode,
		AllowDictateNextSigner: input.AllowDictateNextSigner,
		AccessAuth:             defaultAuth(input.AccessAuth),
		ActionAuth:             defaultAuth(input.ActionAuth),
		DateFormat:             input.DateFormat,
		Timezone:               input.Timezone,
	}

	if input.ActionAuth == models.AuthMethodPassword {
		if strings.TrimSpace(input.ActionAuthPassword) == "" {
			return nil, apperrors.NewBadRequest("PASSWORD action auth requires a password")
		}
		hash, err := crypto.HashPassword(input.ActionAuthPassword)
		if err != nil {
			return nil, fmt.Errorf("envelope service: hash action password: %w", err)
		}
		envelope.ActionAuthSecret = hash
	}

	if len(input.FormValues) > 0 {
		encoded, err := encodeFormValues(input.FormValues)
		if err != nil {
			return nil, err
		}
		envelope.FormValues = encoded
	}

	// Blobs are written first; the relational rows follow in one transaction.
	// Document payloads are flattened before storage so no interactive form
	// survives creation; template payloads keep their form editable.
	blobIDs := make([]string, len(input.Items))
	for i, item := range input.Items {
		payload := item.Data
		if input.Type == models.EnvelopeTypeDocument {
			rendered, err := renderDocumentPayload(s.engine, payload, input.FormValues)
			if err != nil {
				return nil, err
			}
			payload = rendered
		}
		id, err := s.blobs.Put(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("envelope service: store item payload: %w", err)
		}
		blobIDs[i] = id
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&envelope).Error; err != nil {
			return fmt.Errorf("envelope service: create envelope: %w", err)
		}

		for i, item := range input.Items {
			row := models.EnvelopeItem{
				EnvelopeID: envelope.ID,
				Order:      i,
				Title:      strings.TrimSpace(item.Title),
				BlobID:     blobIDs[i],
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("envelope service: create item: %w", err)
			}
			envelope.Items = append(envelope.Items, row)
		}

		for _, rec := range input.Recipients {
			row, err := buildRecipient(envelope.ID, rec)
			if err != nil {
				return err
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("envelope service: create recipient: %w", err)
			}
			envelope.Recipients = append(envelope.Recipients, *row)
		}

		for _, f := range input.Fields {
			row := models.Field{
				EnvelopeID:  envelope.ID,
				RecipientID: envelope.Recipients[f.RecipientIndex].ID,
				ItemID:      envelope.Items[f.ItemIndex].ID,
				Type:        f.Type,
				Page:        maxInt(f.Page, 1),
				PositionX:   f.PositionX,
				PositionY:   f.PositionY,
				Width:       f.Width,
				Height:      f.Height,
				Required:    f.Required,
				FieldMeta:   f.FieldMeta,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("envelope service: create field: %w", err)
			}
			envelope.Fields = append(envelope.Fields, row)
		}

		entry := AuditEntry{
			EnvelopeID: envelope.ID,
			Type:       models.AuditEventEnvelopeCreated,
			UserID:     strPtr(input.UserID),
			Data:       map[string]any{"type": envelope.Type, "title": envelope.Title},
		}
		return s.audit.AppendTx(tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return &envelope, nil
}

// Get loads an envelope with its associations, scoped to the owning user.
func (s *EnvelopeService) Get(ctx context.Context, envelopeID, userID string) (*models.Envelope, error) {
	var envelope models.Envelope
	err := s.db.WithContext(ensureContext(ctx)).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Recipients").
		Preload("Fields").
		Preload("Fields.Signature").
		Preload("DirectLink").
		First(&envelope, "id = ? AND user_id = ?", envelopeID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("envelope not found")
	}
	if err != nil {
		return nil, fmt.Errorf("envelope service: get: %w", err)
	}
	return &envelope, nil
}

// AddRecipient attaches a recipient to a DRAFT envelope. Once an envelope is
// distributed the recipient list is fixed.
func (s *EnvelopeService) AddRecipient(ctx context.Context, envelopeID, userID string, input CreateRecipientInput) (*models.Recipient, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.Email) == "" {
		return nil, apperrors.NewBadRequest("recipient email is required")
	}

	var recipient *models.Recipient

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		envelope, err := loadDraft(tx, envelopeID, userID)
		if err != nil {
			return err
		}

		row, err := buildRecipient(envelope.ID, input)
		if err != nil {
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("envelope service: add recipient: %w", err)
		}
		recipient = row

		return s.audit.AppendTx(tx, AuditEntry{
			EnvelopeID:  envelope.ID,
			Type:        models.AuditEventRecipientAdded,
			UserID:      strPtr(userID),
			RecipientID: strPtr(row.ID),
			Email:       row.Email,
			Data:        map[string]any{"role": row.Role},
		})
	})
	if err != nil {
		return nil, err
	}
	return recipient, nil
}

// AddFieldInput places a field on an existing DRAFT envelope by concrete
// recipient and item IDs, unlike the index-addressed creation payload.
type AddFieldInput struct {
	RecipientID string
	ItemID      string
	Type        models.FieldType
	Page        int
	PositionX   float64
	PositionY   float64
	Width       float64
	Height      float64
	Required    bool
	FieldMeta   []byte
}

// AddField places a field on a DRAFT envelope.
func (s *EnvelopeService) AddField(ctx context.Context, envelopeID, userID string, input AddFieldInput) (*models.Field, error) {
	ctx = ensureContext(ctx)

	var field *models.Field

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		envelope, err := loadDraft(tx, envelopeID, userID)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Recipient{}).
			Where("id = ? AND envelope_id = ?", input.RecipientID, envelope.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("envelope service: check recipient: %w", err)
		}
		if count == 0 {
			return apperrors.NewBadRequest("field references an unknown recipient")
		}
		if err := tx.Model(&models.EnvelopeItem{}).
			Where("id = ? AND envelope_id = ?", input.ItemID, envelope.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("envelope service: check item: %w", err)
		}
		if count == 0 {
			return apperrors.NewBadRequest("field references an unknown item")
		}

		row := models.Field{
			EnvelopeID:  envelope.ID,
			RecipientID: input.RecipientID,
			ItemID:      input.ItemID,
			Type:        input.Type,
			Page:        maxInt(input.Page, 1),
			PositionX:   input.PositionX,
			PositionY:   input.PositionY,
			Width:       input.Width,
			Height:      input.Height,
			Required:    input.Required,
			FieldMeta:   input.FieldMeta,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("envelope service: add field: %w", err)
		}
		field = &row

		return s.audit.AppendTx(tx, AuditEntry{
			EnvelopeID:  envelope.ID,
			Type:        models.AuditEventFieldAdded,
			UserID:      strPtr(userID),
			RecipientID: strPtr(input.RecipientID),
			Data:        map[string]any{"field_type": row.Type},
		})
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

func loadDraft(tx *gorm.DB, envelopeID, userID string) (*models.Envelope, error) {
	var envelope models.Envelope
	err := tx.First(&envelope, "id = ? AND user_id = ?", envelopeID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("envelope not found")
	}
	if err != nil {
		return nil, fmt.Errorf("envelope service: load envelope: %w", err)
	}
	if envelope.Status != models.EnvelopeStatusDraft {
		return nil, apperrors.ErrValidation.WithInternal(ErrEnvelopeNotDraft).WithMessage(
			fmt.Sprintf("a %s envelope can no longer be edited", envelope.Status))
	}
	return &envelope, nil
}

// Distribute transitions DRAFT/PENDING -> PENDING and sends signing request
// notifications to every currently actionable recipient. Redistribution
// rotates every pending recipient's token, invalidating previously shared
// links.
func (s *EnvelopeService) Distribute(ctx context.Context, envelopeID, userID string, meta RequestMeta) (*models.Envelope, error) {
	ctx = ensureContext(ctx)

	var envelope *models.Envelope

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var env models.Envelope
		err := tx.Preload("Recipients").First(&env, "id = ? AND user_id = ?", envelopeID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("envelope not found")
		}
		if err != nil {
			return fmt.Errorf("envelope service: load envelope: %w", err)
		}

		if env.Status != models.EnvelopeStatusDraft && env.Status != models.EnvelopeStatusPending {
			return apperrors.ErrValidation.WithMessage(
				fmt.Sprintf("a %s envelope cannot be distributed", env.Status))
		}
		if env.Type != models.EnvelopeTypeDocument {
			return apperrors.ErrValidation.WithMessage("only DOCUMENT envelopes are distributed; use a direct link for templates")
		}
		if len(env.Recipients) == 0 {
			return apperrors.ErrInvalidConfiguration.WithMessage("an envelope needs at least one recipient before distribution")
		}

		// Documents are always bound to real addresses; placeholders are a
		// template-only affordance.
		for _, r := range env.Recipients {
			if _, err := mail.ParseAddress(r.Email); err != nil {
				return apperrors.ErrInvalidConfiguration.WithMessage(
					fmt.Sprintf("recipient %s has no valid email address", r.ID))
			}
		}

		redistribution := env.Status == models.EnvelopeStatusPending
		if redistribution {
			for i := range env.Recipients {
				if env.Recipients[i].SigningStatus != models.SigningStatusNotSigned {
					continue
				}
				token, err := crypto.GenerateSigningToken()
				if err != nil {
					return fmt.Errorf("envelope service: rotate token: %w", err)
				}
				if err := tx.Model(&env.Recipients[i]).
					Updates(map[string]any{"token": token, "send_status": models.SendStatusNotSent}).Error; err != nil {
					return fmt.Errorf("envelope service: rotate token: %w", err)
				}
				env.Recipients[i].Token = token
				env.Recipients[i].SendStatus = models.SendStatusNotSent
			}
		}

		if env.Status == models.EnvelopeStatusDraft {
			if err := tx.Model(&env).Update("status", models.EnvelopeStatusPending).Error; err != nil {
				return fmt.Errorf("envelope service: update status: %w", err)
			}
			env.Status = models.EnvelopeStatusPending
		}

		entry := AuditEntry{
			EnvelopeID: env.ID,
			Type:       models.AuditEventEnvelopeSent,
			UserID:     strPtr(userID),
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			Data:       map[string]any{"redistribution": redistribution},
		}
		if err := s.audit.AppendTx(tx, entry); err != nil {
			return err
		}

		envelope = &env
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyActionable(ctx, envelope)
	return envelope, nil
}

// EnableDirectLink exposes a TEMPLATE for anonymous self-service signing,
// designating one of its recipients as the direct placeholder.
func (s *EnvelopeService) EnableDirectLink(ctx context.Context, envelopeID, userID, directRecipientID string) (*models.DirectLink, error) {
	ctx = ensureContext(ctx)

	var link models.DirectLink

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var env models.Envelope
		err := tx.First(&env, "id = ? AND user_id = ?", envelopeID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("template not found")
		}
		if err != nil {
			return fmt.Errorf("envelope service: load template: %w", err)
		}
		if env.Type != models.EnvelopeTypeTemplate {
			return apperrors.ErrValidation.WithMessage("direct links are only available on templates")
		}

		var recipient models.Recipient
		err = tx.First(&recipient, "id = ? AND envelope_id = ?", directRecipientID, env.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("direct recipient not found on template")
		}
		if err != nil {
			return fmt.Errorf("envelope service: load direct recipient: %w", err)
		}
		if !recipient.Role.CanSign() {
			return apperrors.ErrValidation.WithMessage("the direct recipient must be able to sign")
		}

		var existing models.DirectLink
		err = tx.First(&existing, "envelope_id = ?", env.ID).Error
		switch {
		case err == nil:
			if err := tx.Model(&existing).
				Updates(map[string]any{"enabled": true, "direct_recipient_id": recipient.ID}).Error; err != nil {
				return fmt.Errorf("envelope service: re-enable direct link: %w", err)
			}
			existing.Enabled = true
			existing.DirectRecipientID = recipient.ID
			link = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			token, err := crypto.GenerateSigningToken()
			if err != nil {
				return fmt.Errorf("envelope service: direct link token: %w", err)
			}
			link = models.DirectLink{
				EnvelopeID:        env.ID,
				Token:             token,
				Enabled:           true,
				DirectRecipientID: recipient.ID,
			}
			if err := tx.Create(&link).Error; err != nil {
				// A template holds at most one link; a concurrent enable loses.
				if isUniqueConstraintError(err) {
					return apperrors.ErrConflict.WithMessage("a direct link already exists for this template")
				}
				return fmt.Errorf("envelope service: create direct link: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("envelope service: load direct link: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return &link, nil
}

// DisableDirectLink turns off anonymous materialization without rotating the
// token, so re-enabling restores the previously shared URL.
func (s *EnvelopeService) DisableDirectLink(ctx context.Context, envelopeID, userID string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.DirectLink{}).
		Where("envelope_id = ? AND envelope_id IN (SELECT id FROM envelopes WHERE user_id = ?)", envelopeID, userID).
		Update("enabled", false)
	if result.Error != nil {
		return fmt.Errorf("envelope service: disable direct link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("direct link not found")
	}
	return nil
}

// Delete removes an envelope and its dependent rows. Recipient rows carry the
// signing tokens, so deletion invalidates every outstanding token. Audit
// entries are retained: the log is append-only even across deletion.
func (s *EnvelopeService) Delete(ctx context.Context, envelopeID, userID string, meta RequestMeta) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var env models.Envelope
		err := tx.First(&env, "id = ? AND user_id = ?", envelopeID, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithMessage("envelope not found")
		}
		if err != nil {
			return fmt.Errorf("envelope service: load envelope: %w", err)
		}

		if err := tx.
			Where("field_id IN (SELECT id FROM fields WHERE envelope_id = ?)", env.ID).
			Delete(&models.Signature{}).Error; err != nil {
			return fmt.Errorf("envelope service: delete signatures: %w", err)
		}
		for _, target := range []any{
			&models.Field{},
			&models.Recipient{},
			&models.EnvelopeItem{},
			&models.DirectLink{},
		} {
			if err := tx.Where("envelope_id = ?", env.ID).Delete(target).Error; err != nil {
				return fmt.Errorf("envelope service: delete dependents: %w", err)
			}
		}
		if err := tx.Delete(&env).Error; err != nil {
			return fmt.Errorf("envelope service: delete envelope: %w", err)
		}

		entry := AuditEntry{
			EnvelopeID: env.ID,
			Type:       models.AuditEventEnvelopeDeleted,
			UserID:     strPtr(userID),
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
		}
		return s.audit.AppendTx(tx, entry)
	})
}

func (s *EnvelopeService) notifyActionable(ctx context.Context, envelope *models.Envelope) {
	if s.mailer == nil || envelope == nil {
		return
	}

	for _, recipient := range ActionableRecipients(envelope.SigningOrderMode, envelope.Recipients) {
		if recipient.SendStatus == models.SendStatusSent {
			continue
		}

		err := pkgmail.Notify(ctx, s.mailer, recipient.Email, pkgmail.TemplateSigningRequest, pkgmail.TemplatePayload{
			RecipientName: recipient.Name,
			EnvelopeTitle: envelope.Title,
			SigningLink:   signingLink(s.baseURL, recipient.Token),
		})
		if err != nil {
			logger.WithModule("envelope").Warn("signing request email failed",
				zap.String("envelope_id", envelope.ID),
				zap.String("recipient_id", recipient.ID),
				zap.Error(err),
			)
			continue
		}

		_ = s.db.WithContext(ctx).Model(&models.Recipient{}).
			Where("id = ?", recipient.ID).
			Update("send_status", models.SendStatusSent).Error
	}
}

func buildRecipient(envelopeID string, input CreateRecipientInput) (*models.Recipient, error) {
	role := input.Role
	if role == "" {
		role = models.RecipientRoleSigner
	}

	token, err := crypto.GenerateSigningToken()
	if err != nil {
		return nil, fmt.Errorf("envelope service: recipient token: %w", err)
	}

	recipient := &models.Recipient{
		EnvelopeID:    envelopeID,
		Role:          role,
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		Name:          strings.TrimSpace(input.Name),
		Token:         token,
		SigningOrder:  input.SigningOrder,
		SigningStatus: models.SigningStatusNotSigned,
		SendStatus:    models.SendStatusNotSent,
	}

	if input.AuthOptions != nil {
		encoded, err := json.Marshal(input.AuthOptions)
		if err != nil {
			return nil, fmt.Errorf("envelope service: encode auth options: %w", err)
		}
		recipient.AuthOptions = encoded
	}

	return recipient, nil
}

func encodeFormValues(values map[string]string) (datatypes.JSON, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("envelope service: encode form values: %w", err)
	}
	return encoded, nil
}

func decodeFormValues(raw datatypes.JSON) (map[string]string, error) {
	values := map[string]string{}
	if len(raw) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, apperrors.ErrInvalidConfiguration.
			WithMessage("the stored form defaults are unreadable").WithInternal(err)
	}
	return values, nil
}

// renderDocumentPayload fills a payload's interactive form from formValues
// and flattens it. Every code path that produces a DOCUMENT payload goes
// through here, so a document's stored bytes never carry an interactive form.
// Form values whose keys match no form field are skipped; those keys address
// signing fields instead (see resolveDirectValues).
func renderDocumentPayload(engine pdf.Engine, data []byte, formValues map[string]string) ([]byte, error) {
	doc, err := engine.Load(data)
	if err != nil {
		return nil, apperrors.NewBadRequest("payload is not a renderable document").WithInternal(err)
	}

	form := doc.Form()
	for _, field := range form.Fields() {
		value, ok := formValues[field.Name]
		if !ok {
			continue
		}
		if err := form.Set(field.Name, value); err != nil {
			return nil, fmt.Errorf("render payload: set form value %q: %w", field.Name, err)
		}
	}

	doc.FlattenForm()

	rendered, err := doc.Save()
	if err != nil {
		return nil, fmt.Errorf("render payload: save: %w", err)
	}
	return rendered, nil
}

func defaultAuth(method models.AuthMethod) models.AuthMethod {
	if method == "" {
		return models.AuthMethodNone
	}
	return method
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

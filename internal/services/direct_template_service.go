package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/fieldmeta"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/internal/pdf"
	"github.com/documenso/documenso-sub011/internal/storage"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/metrics"
)

// DirectTemplateService materializes a template into a live DOCUMENT envelope
// on behalf of an anonymous visitor holding a direct link, then drives the
// visitor's values through the regular signing protocol.
type DirectTemplateService struct {
	db      *gorm.DB
	blobs   storage.BlobStore
	engine  pdf.Engine
	signing *SigningService
	audit   *AuditService
	now     func() time.Time
}

// NewDirectTemplateService constructs a DirectTemplateService.
func NewDirectTemplateService(db *gorm.DB, blobs storage.BlobStore, engine pdf.Engine, signing *SigningService, audit *AuditService) (*DirectTemplateService, error) {
	if db == nil {
		return nil, errors.New("direct template service: db is required")
	}
	if blobs == nil {
		return nil, errors.New("direct template service: blob store is required")
	}
	if engine == nil {
		return nil, errors.New("direct template service: pdf engine is required")
	}
	if signing == nil {
		return nil, errors.New("direct template service: signing service is required")
	}
	if audit == nil {
		return nil, errors.New("direct template service: audit service is required")
	}
	return &DirectTemplateService{db: db, blobs: blobs, engine: engine, signing: signing, audit: audit, now: time.Now}, nil
}

// DirectFieldValue is one value the visitor supplies for a template field,
// keyed by the template's field ID.
type DirectFieldValue struct {
	FieldID  string
	Value    string
	IsBase64 bool
}

// CreateFromDirectTemplateInput is the materialization payload.
type CreateFromDirectTemplateInput struct {
	Token string

	Email string
	Name  string

	// ExternalID tags the created document with a caller-supplied reference.
	ExternalID string

	// TemplateUpdatedAt, when set, must match the template's current
	// UpdatedAt. A mismatch means the visitor signed against a stale layout.
	TemplateUpdatedAt *time.Time

	SignedFieldValues []DirectFieldValue

	Auth ActionAuthInput
	Meta RequestMeta
}

// DirectTemplateResult identifies the created document and the visitor's
// session within it.
type DirectTemplateResult struct {
	Token       string `json:"token"`
	DocumentID  string `json:"document_id"`
	RecipientID string `json:"recipient_id"`
}

// CreateFromDirectTemplate turns the template behind a direct link into a
// PENDING document with the visitor bound to the direct recipient slot, signs
// the supplied values, and completes the visitor's part. All validation runs
// before the first write, and the clone, the values, and the completion
// commit in one transaction; either the full document materializes or
// nothing does.
func (s *DirectTemplateService) CreateFromDirectTemplate(ctx context.Context, input CreateFromDirectTemplateInput) (*DirectTemplateResult, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("an email address is required")
	}

	var link models.DirectLink
	err := s.db.WithContext(ctx).First(&link, "token = ?", strings.TrimSpace(input.Token)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("direct link not found")
	}
	if err != nil {
		return nil, fmt.Errorf("direct template service: load link: %w", err)
	}
	if !link.Enabled {
		return nil, apperrors.ErrNotFound.WithMessage("direct link not found")
	}

	var template models.Envelope
	err = s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Preload("Recipients").
		Preload("Fields").
		First(&template, "id = ?", link.EnvelopeID).Error
	if err != nil {
		return nil, fmt.Errorf("direct template service: load template: %w", err)
	}
	if template.Type != models.EnvelopeTypeTemplate {
		return nil, apperrors.ErrInvalidConfiguration.WithMessage("direct link does not target a template")
	}

	if input.TemplateUpdatedAt != nil && !input.TemplateUpdatedAt.Equal(template.UpdatedAt) {
		return nil, apperrors.ErrConflict.WithMessage("the template changed since it was loaded; reload and sign again")
	}

	var directRecipient *models.Recipient
	for i := range template.Recipients {
		if template.Recipients[i].ID == link.DirectRecipientID {
			directRecipient = &template.Recipients[i]
			break
		}
	}
	if directRecipient == nil {
		return nil, apperrors.ErrInvalidConfiguration.WithMessage("the direct recipient no longer exists on the template")
	}

	derived, err := DeriveRecipientAuth(&template, directRecipient)
	if err != nil {
		return nil, fmt.Errorf("direct template service: derive auth: %w", err)
	}
	if err := VerifyAccessAuth(derived.AccessAuth, input.Meta.User); err != nil {
		return nil, err
	}
	// The visitor's action-auth proof is checked before any write; the same
	// secret guards the cloned document, so a proof that fails here would
	// fail inside the protocol too.
	if err := VerifyActionAuth(derived.ActionAuth, &template, input.Auth, input.Meta); err != nil {
		return nil, err
	}

	formDefaults, err := decodeFormValues(template.FormValues)
	if err != nil {
		return nil, err
	}

	values, err := resolveDirectValues(&template, directRecipient.ID, input.SignedFieldValues, formDefaults)
	if err != nil {
		return nil, err
	}

	// Copy-on-write: every payload gets its interactive form filled from the
	// template defaults and flattened into a fresh blob. The document never
	// shares storage with the template, and the template keeps its form.
	itemBlobIDs := make(map[string]string, len(template.Items))
	for _, item := range template.Items {
		data, err := s.blobs.Get(ctx, item.BlobID)
		if err != nil {
			return nil, fmt.Errorf("direct template service: item %s payload: %w", item.ID, err)
		}
		rendered, err := renderDocumentPayload(s.engine, data, formDefaults)
		if err != nil {
			return nil, err
		}
		blobID, err := s.blobs.Put(ctx, rendered)
		if err != nil {
			return nil, fmt.Errorf("direct template service: store document payload: %w", err)
		}
		itemBlobIDs[item.ID] = blobID
	}

	var (
		result  DirectTemplateResult
		outcome *completionOutcome
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		document, visitor, fieldIDMap, err := s.materialize(tx, &template, &link, directRecipient, itemBlobIDs, email, strings.TrimSpace(input.Name), input)
		if err != nil {
			return err
		}

		// The visitor's values flow through the normal protocol so
		// validation, auditing, and ordering behave exactly as interactive
		// signing, and roll back with the clone on failure.
		for _, value := range values {
			_, err := s.signing.signFieldTx(tx, SignFieldInput{
				Token:    visitor.Token,
				FieldID:  fieldIDMap[value.FieldID],
				Value:    value.Value,
				IsBase64: value.IsBase64,
				Auth:     input.Auth,
				Meta:     input.Meta,
			})
			if err != nil {
				return err
			}
		}

		outcome, err = s.signing.completeRecipientTx(tx, CompleteRecipientInput{
			Token: visitor.Token,
			Auth:  input.Auth,
			Meta:  input.Meta,
		})
		if err != nil {
			return err
		}

		result = DirectTemplateResult{
			Token:       visitor.Token,
			DocumentID:  document.ID,
			RecipientID: visitor.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.signing.finishCompletion(ctx, outcome)
	metrics.DirectTemplateDocuments.Inc()

	return &result, nil
}

// resolveDirectValues merges visitor-supplied values with the template's form
// defaults, visitor values winning, and verifies up front that every required
// field of the direct recipient ends up covered and every value parses.
func resolveDirectValues(template *models.Envelope, directRecipientID string, supplied []DirectFieldValue, defaults map[string]string) ([]DirectFieldValue, error) {
	byField := make(map[string]DirectFieldValue, len(supplied))
	for _, value := range supplied {
		byField[value.FieldID] = value
	}

	var resolved []DirectFieldValue
	for _, field := range template.Fields {
		if field.RecipientID != directRecipientID {
			continue
		}

		value, ok := byField[field.ID]
		if !ok {
			if fallback, has := defaults[field.ID]; has {
				value = DirectFieldValue{FieldID: field.ID, Value: fallback}
				ok = true
			}
		}

		if !ok {
			if field.Required && field.Type != models.FieldTypeDate {
				return nil, apperrors.ErrInvalidConfiguration.WithMessage(
					fmt.Sprintf("required field %s has no value", field.ID))
			}
			if field.Type != models.FieldTypeDate {
				continue
			}
			// Date fields stamp the server clock; an empty value suffices.
			value = DirectFieldValue{FieldID: field.ID}
		}

		meta, err := fieldmeta.Parse(field.Type, field.FieldMeta)
		if err != nil {
			return nil, apperrors.ErrInvalidConfiguration.WithMessage(
				fmt.Sprintf("field %s has an invalid schema", field.ID)).WithInternal(err)
		}
		if field.Type != models.FieldTypeDate {
			if err := meta.Validate(value.Value); err != nil {
				return nil, apperrors.ErrInvalidConfiguration.WithMessage(
					fmt.Sprintf("field %s: %s", field.ID, err.Error()))
			}
		}
		if field.Required {
			// An empty checkbox selection parses but satisfies nothing.
			if checkbox, isCheckbox := meta.(*fieldmeta.CheckboxMeta); isCheckbox {
				selected, err := checkbox.Selected(value.Value)
				if err != nil || len(selected) == 0 {
					return nil, apperrors.ErrInvalidConfiguration.WithMessage(
						fmt.Sprintf("required field %s needs at least one selected option", field.ID))
				}
			}
		}

		resolved = append(resolved, value)
	}

	for _, value := range supplied {
		matched := false
		for _, field := range template.Fields {
			if field.ID == value.FieldID && field.RecipientID == directRecipientID {
				matched = true
				break
			}
		}
		if !matched {
			return nil, apperrors.ErrInvalidConfiguration.WithMessage(
				fmt.Sprintf("value supplied for unknown field %s", value.FieldID))
		}
	}

	return resolved, nil
}

// materialize clones the template's rows into a PENDING DOCUMENT envelope
// within the caller's transaction. Item rows point at the freshly rendered
// blobs, never at the template's.
func (s *DirectTemplateService) materialize(tx *gorm.DB, template *models.Envelope, link *models.DirectLink, directRecipient *models.Recipient, itemBlobIDs map[string]string, email, name string, input CreateFromDirectTemplateInput) (*models.Envelope, *models.Recipient, map[string]string, error) {
	document := models.Envelope{
		Type:                   models.EnvelopeTypeDocument,
		Status:                 models.EnvelopeStatusPending,
		Title:                  template.Title,
		ExternalID:             strPtr(strings.TrimSpace(input.ExternalID)),
		UserID:                 template.UserID,
		SourceTemplateID:       strPtr(template.ID),
		SigningOrderMode:       template.SigningOrderMode,
		AllowDictateNextSigner: template.AllowDictateNextSigner,
		AccessAuth:             template.AccessAuth,
		ActionAuth:             template.ActionAuth,
		ActionAuthSecret:       template.ActionAuthSecret,
		DateFormat:             template.DateFormat,
		Timezone:               template.Timezone,
		FormValues:             template.FormValues,
	}

	if err := tx.Create(&document).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("direct template service: create document: %w", err)
	}

	itemIDMap := make(map[string]string, len(template.Items))
	for _, item := range template.Items {
		clone := models.EnvelopeItem{
			EnvelopeID: document.ID,
			Order:      item.Order,
			Title:      item.Title,
			BlobID:     itemBlobIDs[item.ID],
		}
		if err := tx.Create(&clone).Error; err != nil {
			return nil, nil, nil, fmt.Errorf("direct template service: clone item: %w", err)
		}
		itemIDMap[item.ID] = clone.ID
	}

	var visitor *models.Recipient
	recipientIDMap := make(map[string]string, len(template.Recipients))
	for _, recipient := range template.Recipients {
		token, err := crypto.GenerateSigningToken()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("direct template service: recipient token: %w", err)
		}

		clone := models.Recipient{
			EnvelopeID:    document.ID,
			Role:          recipient.Role,
			Email:         recipient.Email,
			Name:          recipient.Name,
			Token:         token,
			SigningOrder:  recipient.SigningOrder,
			SigningStatus: models.SigningStatusNotSigned,
			SendStatus:    models.SendStatusNotSent,
			AuthOptions:   recipient.AuthOptions,
		}
		if recipient.ID == directRecipient.ID {
			clone.Email = email
			if name != "" {
				clone.Name = name
			}
		}
		if err := tx.Create(&clone).Error; err != nil {
			return nil, nil, nil, fmt.Errorf("direct template service: clone recipient: %w", err)
		}
		recipientIDMap[recipient.ID] = clone.ID
		if recipient.ID == directRecipient.ID {
			copied := clone
			visitor = &copied
		}
	}

	fieldIDMap := make(map[string]string, len(template.Fields))
	for _, field := range template.Fields {
		clone := models.Field{
			EnvelopeID:  document.ID,
			RecipientID: recipientIDMap[field.RecipientID],
			ItemID:      itemIDMap[field.ItemID],
			Type:        field.Type,
			Page:        field.Page,
			PositionX:   field.PositionX,
			PositionY:   field.PositionY,
			Width:       field.Width,
			Height:      field.Height,
			Required:    field.Required,
			FieldMeta:   field.FieldMeta,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return nil, nil, nil, fmt.Errorf("direct template service: clone field: %w", err)
		}
		fieldIDMap[field.ID] = clone.ID
	}

	entry := AuditEntry{
		EnvelopeID:  document.ID,
		Type:        models.AuditEventDocumentFromDirect,
		RecipientID: strPtr(visitor.ID),
		Email:       email,
		Name:        name,
		IPAddress:   input.Meta.IPAddress,
		UserAgent:   input.Meta.UserAgent,
		Data: map[string]any{
			"template_id":       template.ID,
			"direct_link_token": link.Token,
		},
	}
	if err := s.audit.AppendTx(tx, entry); err != nil {
		return nil, nil, nil, err
	}

	return &document, visitor, fieldIDMap, nil
}

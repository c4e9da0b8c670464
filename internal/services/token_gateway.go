package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/documenso/documenso-sub011/internal/models"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

// TokenGateway maps opaque recipient tokens to their recipient+envelope pair
// and arbitrates which mutations a token may perform. The token is the
// session: participants never need an account.
type TokenGateway struct {
	db *gorm.DB
}

// NewTokenGateway constructs a TokenGateway.
func NewTokenGateway(db *gorm.DB) (*TokenGateway, error) {
	if db == nil {
		return nil, errors.New("token gateway: db is required")
	}
	return &TokenGateway{db: db}, nil
}

// Resolve maps a token to its recipient and envelope without authorizing any
// particular mutation. Used for read-only signing views.
func (g *TokenGateway) Resolve(ctx context.Context, token string) (*models.Recipient, *models.Envelope, error) {
	return resolveToken(g.db.WithContext(ensureContext(ctx)), token)
}

// ResolveForAction resolves a token and checks it may mutate the envelope:
// the envelope must be PENDING and the recipient's role must be able to sign.
func (g *TokenGateway) ResolveForAction(ctx context.Context, token string) (*models.Recipient, *models.Envelope, error) {
	return resolveTokenForAction(g.db.WithContext(ensureContext(ctx)), token)
}

// SigningView is everything a participant needs to render their signing
// session: the envelope, their own recipient row, and only their fields.
type SigningView struct {
	Envelope  *models.Envelope  `json:"envelope"`
	Recipient *models.Recipient `json:"recipient"`
	Fields    []models.Field    `json:"fields"`
}

// View assembles the signing session for a token. Other recipients' fields
// and tokens are never exposed.
func (g *TokenGateway) View(ctx context.Context, token string) (*SigningView, error) {
	tx := g.db.WithContext(ensureContext(ctx))

	recipient, envelope, err := resolveToken(tx, token)
	if err != nil {
		return nil, err
	}

	if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	}).First(envelope, "id = ?", envelope.ID).Error; err != nil {
		return nil, fmt.Errorf("token gateway: load items: %w", err)
	}

	var fields []models.Field
	err = tx.Preload("Signature").
		Where("recipient_id = ?", recipient.ID).
		Order("page ASC, position_y ASC, position_x ASC").
		Find(&fields).Error
	if err != nil {
		return nil, fmt.Errorf("token gateway: load fields: %w", err)
	}

	return &SigningView{Envelope: envelope, Recipient: recipient, Fields: fields}, nil
}

func resolveToken(tx *gorm.DB, token string) (*models.Recipient, *models.Envelope, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage("a signing token is required")
	}

	var recipient models.Recipient
	err := tx.First(&recipient, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage("unknown signing token")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("token gateway: resolve token: %w", err)
	}

	var envelope models.Envelope
	if err := tx.First(&envelope, "id = ?", recipient.EnvelopeID).Error; err != nil {
		return nil, nil, fmt.Errorf("token gateway: load envelope: %w", err)
	}

	return &recipient, &envelope, nil
}

func resolveTokenForAction(tx *gorm.DB, token string) (*models.Recipient, *models.Envelope, error) {
	recipient, envelope, err := resolveToken(tx, token)
	if err != nil {
		return nil, nil, err
	}

	if !recipient.Role.CanSign() {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage(
			fmt.Sprintf("recipients with role %s cannot sign", recipient.Role))
	}
	if envelope.Status != models.EnvelopeStatusPending {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage(
			fmt.Sprintf("envelope is %s, not open for signing", envelope.Status))
	}

	return recipient, envelope, nil
}

// resolveTokenForCompletion admits every role that holds up envelope
// completion, not just the signing roles: a VIEWER completes by confirming
// they have seen the envelope, without ever mutating a field.
func resolveTokenForCompletion(tx *gorm.DB, token string) (*models.Recipient, *models.Envelope, error) {
	recipient, envelope, err := resolveToken(tx, token)
	if err != nil {
		return nil, nil, err
	}

	if !recipient.Role.BlocksCompletion() {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage(
			fmt.Sprintf("recipients with role %s have nothing to complete", recipient.Role))
	}
	if envelope.Status != models.EnvelopeStatusPending {
		return nil, nil, apperrors.ErrUnauthorized.WithMessage(
			fmt.Sprintf("envelope is %s, not open for signing", envelope.Status))
	}

	return recipient, envelope, nil
}

// authorizeField checks that the field targeted by a mutation belongs to the
// token's recipient.
func authorizeField(recipient *models.Recipient, field *models.Field) error {
	if field.RecipientID != recipient.ID {
		return apperrors.ErrUnauthorized.WithMessage("field belongs to a different recipient")
	}
	return nil
}

package services

import (
	"github.com/documenso/documenso-sub011/internal/auth"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/pkg/crypto"
	apperrors "github.com/documenso/documenso-sub011/pkg/errors"
)

// DerivedAuth is the resolved identity-proof requirement for one recipient:
// what they must present to view the envelope and what they must present to
// sign or approve it.
type DerivedAuth struct {
	AccessAuth models.AuthMethod
	ActionAuth models.AuthMethod
}

// DeriveRecipientAuth resolves the effective auth requirements for a
// recipient. Recipient-level overrides win over envelope-level settings,
// which win over the system default (NONE). The function is pure so it can
// run on every page view and mutation attempt.
func DeriveRecipientAuth(envelope *models.Envelope, recipient *models.Recipient) (DerivedAuth, error) {
	derived := DerivedAuth{
		AccessAuth: models.AuthMethodNone,
		ActionAuth: models.AuthMethodNone,
	}

	if envelope != nil {
		if envelope.AccessAuth != "" {
			derived.AccessAuth = envelope.AccessAuth
		}
		if envelope.ActionAuth != "" {
			derived.ActionAuth = envelope.ActionAuth
		}
	}

	if recipient != nil {
		overrides, err := recipient.ParseAuthOptions()
		if err != nil {
			return DerivedAuth{}, err
		}
		if overrides.AccessAuth != nil && *overrides.AccessAuth != "" {
			derived.AccessAuth = *overrides.AccessAuth
		}
		if overrides.ActionAuth != nil && *overrides.ActionAuth != "" {
			derived.ActionAuth = *overrides.ActionAuth
		}
	}

	return derived, nil
}

// ActionAuthInput is the identity proof supplied alongside a signing mutation.
type ActionAuthInput struct {
	Password      string `json:"password,omitempty"`
	TwoFactorCode string `json:"two_factor_code,omitempty"`
}

// VerifyAccessAuth checks whether the current session satisfies the derived
// access requirement. Callers redirect to authentication on failure rather
// than downgrading the requirement.
func VerifyAccessAuth(required models.AuthMethod, user *models.User) error {
	switch required {
	case models.AuthMethodNone, "":
		return nil
	case models.AuthMethodAccount, models.AuthMethodTwoFactor, models.AuthMethodPasskey:
		if user == nil {
			return apperrors.ErrUnauthorized.WithMessage("an authenticated session is required to view this envelope")
		}
		return nil
	case models.AuthMethodPassword:
		// Password proof is collected at action time, not view time.
		return nil
	default:
		return apperrors.ErrUnauthorized.WithMessage("unsupported access authentication requirement")
	}
}

// VerifyActionAuth checks the supplied proof against the derived action
// requirement. It is invoked before any signing-time persistence.
func VerifyActionAuth(required models.AuthMethod, envelope *models.Envelope, input ActionAuthInput, meta RequestMeta) error {
	switch required {
	case models.AuthMethodNone, "":
		return nil

	case models.AuthMethodAccount:
		if meta.User == nil {
			return apperrors.ErrUnauthorized.WithMessage("signing requires an authenticated account")
		}
		return nil

	case models.AuthMethodPassword:
		if envelope == nil || envelope.ActionAuthSecret == "" {
			return apperrors.ErrUnauthorized.WithMessage("envelope has no signing password configured")
		}
		if !crypto.VerifyPassword(envelope.ActionAuthSecret, input.Password) {
			return apperrors.ErrUnauthorized.WithMessage("incorrect signing password")
		}
		return nil

	case models.AuthMethodTwoFactor:
		if meta.User == nil {
			return apperrors.ErrUnauthorized.WithMessage("two-factor signing requires an authenticated account")
		}
		if !auth.VerifyTwoFactorCode(meta.User.TwoFactorSecret, input.TwoFactorCode) {
			return apperrors.ErrUnauthorized.WithMessage("invalid two-factor code")
		}
		return nil

	case models.AuthMethodPasskey:
		// The passkey ceremony happens at the session layer; an
		// authenticated session is the evidence it succeeded.
		if meta.User == nil {
			return apperrors.ErrUnauthorized.WithMessage("passkey signing requires an authenticated account")
		}
		return nil

	default:
		return apperrors.ErrUnauthorized.WithMessage("unsupported action authentication requirement")
	}
}

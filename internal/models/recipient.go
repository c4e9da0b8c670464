package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RecipientRole describes what a party is asked to do with an envelope.
type RecipientRole string

const (
	RecipientRoleSigner    RecipientRole = "SIGNER"
	RecipientRoleApprover  RecipientRole = "APPROVER"
	RecipientRoleCC        RecipientRole = "CC"
	RecipientRoleViewer    RecipientRole = "VIEWER"
	RecipientRoleAssistant RecipientRole = "ASSISTANT"
)

// CanSign reports whether the role is permitted to mutate fields.
func (r RecipientRole) CanSign() bool {
	switch r {
	case RecipientRoleSigner, RecipientRoleApprover, RecipientRoleAssistant:
		return true
	default:
		return false
	}
}

// BlocksCompletion reports whether the envelope waits on this role before sealing.
func (r RecipientRole) BlocksCompletion() bool {
	return r != RecipientRoleCC
}

// SigningStatus is the per-recipient progress state.
type SigningStatus string

const (
	SigningStatusNotSigned SigningStatus = "NOT_SIGNED"
	SigningStatusSigned    SigningStatus = "SIGNED"
	SigningStatusRejected  SigningStatus = "REJECTED"
)

// SendStatus records whether the signing request email went out.
type SendStatus string

const (
	SendStatusNotSent SendStatus = "NOT_SENT"
	SendStatusSent    SendStatus = "SENT"
)

// RecipientAuthOptions are recipient-level overrides of the envelope's
// access/action authentication requirements. Nil members mean "inherit".
type RecipientAuthOptions struct {
	AccessAuth *AuthMethod `json:"access_auth,omitempty"`
	ActionAuth *AuthMethod `json:"action_auth,omitempty"`
}

// Recipient is one signing party on an envelope. The token is the sole
// credential by which an unauthenticated party acts for this recipient.
type Recipient struct {
	BaseModel

	EnvelopeID string        `gorm:"type:uuid;not null;index" json:"envelope_id"`
	Role       RecipientRole `gorm:"not null;default:SIGNER" json:"role"`
	Email      string        `gorm:"not null;index" json:"email"`
	Name       string        `json:"name"`

	Token string `gorm:"not null;uniqueIndex" json:"-"`

	SigningOrder  *int          `json:"signing_order,omitempty"`
	SigningStatus SigningStatus `gorm:"not null;default:NOT_SIGNED" json:"signing_status"`
	SendStatus    SendStatus    `gorm:"not null;default:NOT_SENT" json:"send_status"`

	SignedAt        *time.Time `json:"signed_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	AuthOptions datatypes.JSON `json:"auth_options,omitempty"`
}

// ParseAuthOptions decodes the recipient-level auth overrides, returning an
// empty value when none are stored.
func (r *Recipient) ParseAuthOptions() (RecipientAuthOptions, error) {
	var opts RecipientAuthOptions
	if len(r.AuthOptions) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(r.AuthOptions, &opts); err != nil {
		return RecipientAuthOptions{}, err
	}
	return opts, nil
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// EnvelopeType distinguishes concrete documents from reusable templates.
type EnvelopeType string

const (
	EnvelopeTypeDocument EnvelopeType = "DOCUMENT"
	EnvelopeTypeTemplate EnvelopeType = "TEMPLATE"
)

// EnvelopeStatus is the lifecycle state of an envelope.
type EnvelopeStatus string

const (
	EnvelopeStatusDraft     EnvelopeStatus = "DRAFT"
	EnvelopeStatusPending   EnvelopeStatus = "PENDING"
	EnvelopeStatusCompleted EnvelopeStatus = "COMPLETED"
	EnvelopeStatusRejected  EnvelopeStatus = "REJECTED"
)

// SigningOrderMode controls whether recipients act in parallel or strictly in sequence.
type SigningOrderMode string

const (
	SigningOrderParallel   SigningOrderMode = "PARALLEL"
	SigningOrderSequential SigningOrderMode = "SEQUENTIAL"
)

// AuthMethod names an identity proof a recipient may be required to present.
type AuthMethod string

const (
	AuthMethodNone      AuthMethod = "NONE"
	AuthMethodAccount   AuthMethod = "ACCOUNT"
	AuthMethodPassword  AuthMethod = "PASSWORD"
	AuthMethodTwoFactor AuthMethod = "TWO_FACTOR"
	AuthMethodPasskey   AuthMethod = "PASSKEY"
)

// Envelope is the unit of the signing workflow: a concrete document in flight
// or a reusable template. UpdatedAt doubles as the optimistic-concurrency
// token used by direct-template materialization.
type Envelope struct {
	BaseModel

	Type   EnvelopeType   `gorm:"not null;index" json:"type"`
	Status EnvelopeStatus `gorm:"not null;index;default:DRAFT" json:"status"`
	Title  string         `gorm:"not null" json:"title"`

	// ExternalID carries a caller-supplied correlation identifier.
	ExternalID *string `gorm:"index" json:"external_id,omitempty"`

	// UserID is the owning account.
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	// SourceTemplateID records one-way provenance for documents materialized
	// from a template. Templates never reference documents back.
	SourceTemplateID *string `gorm:"type:uuid;index" json:"source_template_id,omitempty"`

	SigningOrderMode       SigningOrderMode `gorm:"not null;default:PARALLEL" json:"signing_order_mode"`
	AllowDictateNextSigner bool             `json:"allow_dictate_next_signer"`

	// Envelope-level authentication defaults; recipients may override.
	AccessAuth AuthMethod `gorm:"not null;default:NONE" json:"access_auth"`
	ActionAuth AuthMethod `gorm:"not null;default:NONE" json:"action_auth"`

	// ActionAuthSecret holds the bcrypt hash backing PASSWORD action auth.
	ActionAuthSecret string `json:"-"`

	// DateFormat and Timezone control how DATE fields are stamped.
	DateFormat string `gorm:"default:2006-01-02 15:04" json:"date_format"`
	Timezone   string `gorm:"default:UTC" json:"timezone"`

	// FormValues are template defaults applied at materialization time,
	// keyed by the underlying form field name.
	FormValues datatypes.JSON `json:"form_values,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Artifacts produced by the sealing pipeline.
	CertificateBlobID *string `json:"certificate_blob_id,omitempty"`
	AuditLogBlobID    *string `json:"audit_log_blob_id,omitempty"`

	Items      []EnvelopeItem `gorm:"foreignKey:EnvelopeID" json:"items,omitempty"`
	Recipients []Recipient    `gorm:"foreignKey:EnvelopeID" json:"recipients,omitempty"`
	Fields     []Field        `gorm:"foreignKey:EnvelopeID" json:"fields,omitempty"`
	DirectLink *DirectLink    `gorm:"foreignKey:EnvelopeID" json:"direct_link,omitempty"`
}

// IsTerminal reports whether the envelope can no longer change state.
func (e *Envelope) IsTerminal() bool {
	return e.Status == EnvelopeStatusCompleted || e.Status == EnvelopeStatusRejected
}

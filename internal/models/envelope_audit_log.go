package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit event types recorded by the signing engine.
const (
	AuditEventEnvelopeCreated    = "ENVELOPE_CREATED"
	AuditEventEnvelopeSent       = "ENVELOPE_SENT"
	AuditEventEnvelopeCompleted  = "ENVELOPE_COMPLETED"
	AuditEventEnvelopeRejected   = "ENVELOPE_REJECTED"
	AuditEventEnvelopeDeleted    = "ENVELOPE_DELETED"
	AuditEventEnvelopeSealed     = "ENVELOPE_SEALED"
	AuditEventFieldSigned        = "FIELD_SIGNED"
	AuditEventFieldUnsigned      = "FIELD_UNSIGNED"
	AuditEventRecipientCompleted = "RECIPIENT_COMPLETED"
	AuditEventRecipientDictated  = "NEXT_RECIPIENT_DICTATED"
	AuditEventDocumentFromDirect = "DOCUMENT_CREATED_FROM_DIRECT_TEMPLATE"
	AuditEventEnvelopeViewed     = "ENVELOPE_VIEWED"
	AuditEventReminderSent       = "REMINDER_SENT"
	AuditEventRecipientAdded     = "RECIPIENT_ADDED"
	AuditEventFieldAdded         = "FIELD_ADDED"
)

// EnvelopeAuditLog is an append-only event record. Entries are never mutated
// or deleted; the certificate pipeline reconstructs history solely by
// replaying this log ordered by (created_at, id).
type EnvelopeAuditLog struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	EnvelopeID string `gorm:"type:uuid;not null;index:idx_envelope_audit_order,priority:1" json:"envelope_id"`
	Type       string `gorm:"not null;index" json:"type"`

	UserID      *string `gorm:"type:uuid" json:"user_id,omitempty"`
	RecipientID *string `gorm:"type:uuid" json:"recipient_id,omitempty"`
	Email       string  `json:"email,omitempty"`
	Name        string  `json:"name,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Data datatypes.JSON `json:"data,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_envelope_audit_order,priority:2" json:"created_at"`
}

// BeforeCreate assigns the entry identifier. There is deliberately no
// UpdatedAt and no update hook: the table is insert-only.
func (a *EnvelopeAuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

package models

// DirectLink exposes a TEMPLATE envelope for anonymous self-service signing.
// Resolving its token materializes a fresh DOCUMENT envelope owned by the
// template owner, with the placeholder direct recipient replaced by the
// visitor's identity.
type DirectLink struct {
	BaseModel

	EnvelopeID string `gorm:"type:uuid;not null;uniqueIndex" json:"envelope_id"`
	Token      string `gorm:"not null;uniqueIndex" json:"token"`
	Enabled    bool   `gorm:"not null" json:"enabled"`

	// DirectRecipientID names the template recipient whose placeholder email
	// is replaced by the visitor at materialization time.
	DirectRecipientID string `gorm:"type:uuid;not null" json:"direct_recipient_id"`
}

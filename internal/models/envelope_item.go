package models

// EnvelopeItem is one binary payload (page set) within an envelope. Envelopes
// may bundle several; fields are placed against a specific item.
type EnvelopeItem struct {
	BaseModel

	EnvelopeID string `gorm:"type:uuid;not null;index" json:"envelope_id"`
	Order      int    `gorm:"column:sort_order;not null;default:0" json:"order"`
	Title      string `json:"title"`

	// BlobID addresses the original payload in the binary store.
	BlobID string `gorm:"not null" json:"blob_id"`

	// SealedBlobID addresses the flattened payload once the envelope seals.
	SealedBlobID *string `json:"sealed_blob_id,omitempty"`
}

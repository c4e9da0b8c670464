package models

import "gorm.io/datatypes"

// FieldType enumerates the placeable field kinds.
type FieldType string

const (
	FieldTypeText      FieldType = "TEXT"
	FieldTypeNumber    FieldType = "NUMBER"
	FieldTypeDate      FieldType = "DATE"
	FieldTypeCheckbox  FieldType = "CHECKBOX"
	FieldTypeRadio     FieldType = "RADIO"
	FieldTypeDropdown  FieldType = "DROPDOWN"
	FieldTypeSignature FieldType = "SIGNATURE"
)

// Field is one placeable, typed slot bound to exactly one recipient and one
// envelope item page/position. Once an envelope is distributed, fields are
// mutated only through the signing protocol.
type Field struct {
	BaseModel

	EnvelopeID  string    `gorm:"type:uuid;not null;index" json:"envelope_id"`
	RecipientID string    `gorm:"type:uuid;not null;index" json:"recipient_id"`
	ItemID      string    `gorm:"type:uuid;not null;index" json:"item_id"`
	Type        FieldType `gorm:"not null" json:"type"`

	Page      int     `gorm:"not null;default:1" json:"page"`
	PositionX float64 `gorm:"not null;default:0" json:"position_x"`
	PositionY float64 `gorm:"not null;default:0" json:"position_y"`
	Width     float64 `gorm:"not null;default:0" json:"width"`
	Height    float64 `gorm:"not null;default:0" json:"height"`

	Required bool `gorm:"not null;default:false" json:"required"`

	// Inserted is true once the field has been signed. An inserted field
	// always carries either CustomText or an attached Signature.
	Inserted   bool   `gorm:"not null;default:false" json:"inserted"`
	CustomText string `json:"custom_text,omitempty"`

	// FieldMeta holds the type-specific schema (option lists, defaults).
	FieldMeta datatypes.JSON `json:"field_meta,omitempty"`

	Signature *Signature `gorm:"foreignKey:FieldID" json:"signature,omitempty"`
}

// Signature stores the drawn or typed signature attached to a SIGNATURE field.
type Signature struct {
	BaseModel

	FieldID     string `gorm:"type:uuid;not null;uniqueIndex" json:"field_id"`
	RecipientID string `gorm:"type:uuid;not null;index" json:"recipient_id"`

	// ImageBase64 holds a data-URL encoded drawn signature; TypedValue holds
	// a typed name. Exactly one is populated.
	ImageBase64 string `json:"image_base64,omitempty"`
	TypedValue  string `json:"typed_value,omitempty"`
}

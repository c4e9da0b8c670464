package fieldmeta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/documenso/documenso-sub011/internal/models"
)

// Meta is the tagged union over field kinds. Each variant owns the validation
// rules for values submitted against fields of its kind. Adding a field type
// means adding a variant here, not branching in shared code.
type Meta interface {
	Kind() models.FieldType

	// Validate checks a caller-supplied value against the variant's schema.
	// It never mutates state; callers persist only after it succeeds.
	Validate(value string) error
}

// Parse decodes the stored field-meta JSON for the given field type. A field
// with no stored meta gets the variant's zero value.
func Parse(fieldType models.FieldType, raw []byte) (Meta, error) {
	var meta Meta

	switch fieldType {
	case models.FieldTypeText:
		meta = &TextMeta{}
	case models.FieldTypeNumber:
		meta = &NumberMeta{}
	case models.FieldTypeDate:
		meta = &DateMeta{}
	case models.FieldTypeCheckbox:
		meta = &CheckboxMeta{}
	case models.FieldTypeRadio:
		meta = &RadioMeta{}
	case models.FieldTypeDropdown:
		meta = &DropdownMeta{}
	case models.FieldTypeSignature:
		meta = &SignatureMeta{}
	default:
		return nil, fmt.Errorf("fieldmeta: unknown field type %q", fieldType)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, fmt.Errorf("fieldmeta: decode %s meta: %w", fieldType, err)
		}
	}

	return meta, nil
}

// TextMeta configures free-form text fields.
type TextMeta struct {
	Label          string `json:"label,omitempty"`
	Placeholder    string `json:"placeholder,omitempty"`
	Text           string `json:"text,omitempty"` // default value
	CharacterLimit int    `json:"character_limit,omitempty"`
}

func (m *TextMeta) Kind() models.FieldType { return models.FieldTypeText }

func (m *TextMeta) Validate(value string) error {
	if m.CharacterLimit > 0 && len([]rune(value)) > m.CharacterLimit {
		return fmt.Errorf("text exceeds character limit of %d", m.CharacterLimit)
	}
	return nil
}

// NumberMeta configures numeric fields with optional bounds.
type NumberMeta struct {
	Label    string   `json:"label,omitempty"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
}

func (m *NumberMeta) Kind() models.FieldType { return models.FieldTypeNumber }

func (m *NumberMeta) Validate(value string) error {
	number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("value %q is not a number", value)
	}
	if m.MinValue != nil && number < *m.MinValue {
		return fmt.Errorf("value %v is below minimum %v", number, *m.MinValue)
	}
	if m.MaxValue != nil && number > *m.MaxValue {
		return fmt.Errorf("value %v is above maximum %v", number, *m.MaxValue)
	}
	return nil
}

// DateMeta configures date stamp fields. The caller-supplied value is ignored
// at signing time; the server stamps its own clock formatted per the
// envelope's document settings, so there is nothing to validate here.
type DateMeta struct {
	Label string `json:"label,omitempty"`
}

func (m *DateMeta) Kind() models.FieldType { return models.FieldTypeDate }

func (m *DateMeta) Validate(string) error { return nil }

// CheckboxOption is one selectable entry of a checkbox group.
type CheckboxOption struct {
	ID      string `json:"id"`
	Value   string `json:"value"`
	Checked bool   `json:"checked,omitempty"` // default state
}

// CheckboxMeta configures checkbox groups. Submitted values are a JSON array
// of selected option values.
type CheckboxMeta struct {
	Label   string           `json:"label,omitempty"`
	Options []CheckboxOption `json:"options,omitempty"`
}

func (m *CheckboxMeta) Kind() models.FieldType { return models.FieldTypeCheckbox }

func (m *CheckboxMeta) Validate(value string) error {
	selected, err := m.decode(value)
	if err != nil {
		return err
	}

	for _, sel := range selected {
		if !m.hasOption(sel) {
			return fmt.Errorf("checkbox option %q is not defined", sel)
		}
	}
	return nil
}

// Selected decodes and returns the chosen option values.
func (m *CheckboxMeta) Selected(value string) ([]string, error) {
	return m.decode(value)
}

func (m *CheckboxMeta) decode(value string) ([]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	var selected []string
	if err := json.Unmarshal([]byte(value), &selected); err != nil {
		return nil, fmt.Errorf("checkbox value must be a JSON array of option values")
	}
	return selected, nil
}

func (m *CheckboxMeta) hasOption(value string) bool {
	for _, opt := range m.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// RadioMeta configures single-choice radio groups.
type RadioMeta struct {
	Label   string   `json:"label,omitempty"`
	Options []string `json:"options,omitempty"`
}

func (m *RadioMeta) Kind() models.FieldType { return models.FieldTypeRadio }

func (m *RadioMeta) Validate(value string) error {
	if value == "" {
		return nil
	}
	for _, opt := range m.Options {
		if opt == value {
			return nil
		}
	}
	return fmt.Errorf("radio option %q is not defined", value)
}

// DropdownMeta configures dropdown fields; the submitted value must be one of
// the enumerated options.
type DropdownMeta struct {
	Label        string   `json:"label,omitempty"`
	Options      []string `json:"options,omitempty"`
	DefaultValue string   `json:"default_value,omitempty"`
}

func (m *DropdownMeta) Kind() models.FieldType { return models.FieldTypeDropdown }

func (m *DropdownMeta) Validate(value string) error {
	if value == "" {
		return nil
	}
	for _, opt := range m.Options {
		if opt == value {
			return nil
		}
	}
	return fmt.Errorf("dropdown value %q is not one of the enumerated options", value)
}

// SignatureMeta configures signature fields.
type SignatureMeta struct {
	Label string `json:"label,omitempty"`

	// AllowTyped permits a typed name in place of a drawn signature.
	AllowTyped bool `json:"allow_typed,omitempty"`
}

func (m *SignatureMeta) Kind() models.FieldType { return models.FieldTypeSignature }

func (m *SignatureMeta) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("signature value must not be empty")
	}
	return nil
}

// Package formdoc implements pdf.Engine over a deterministic JSON document
// format. It preserves the semantics the signing engine relies on (form
// fields, flattening, and positioned overlays) without binding the core to a
// particular rasterizer.
package formdoc

import (
	"encoding/json"
	"fmt"

	"github.com/documenso/documenso-sub011/internal/pdf"
)

const formatTag = "formdoc/v1"

// Default page dimensions in points (US Letter).
const (
	DefaultPageWidth  = 612.0
	DefaultPageHeight = 792.0
)

// Engine is the formdoc implementation of pdf.Engine.
type Engine struct{}

// NewEngine returns a formdoc engine.
func NewEngine() *Engine { return &Engine{} }

// Load parses a formdoc payload into a mutable document.
func (e *Engine) Load(data []byte) (pdf.Document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("formdoc: parse payload: %w", err)
	}
	if doc.Format != formatTag {
		return nil, fmt.Errorf("formdoc: unsupported format %q", doc.Format)
	}
	return &doc, nil
}

// Compose creates an empty document with the requested number of
// default-size pages.
func (e *Engine) Compose(pages int) pdf.Document { return New(pages) }

// New creates an empty document with the requested number of default-size
// pages. Used to compose generated artifacts such as signing certificates.
func New(pages int) pdf.Document {
	doc := &document{Format: formatTag}
	for i := 0; i < pages; i++ {
		doc.AddPage(DefaultPageWidth, DefaultPageHeight)
	}
	return doc
}

// NewWithForm creates a document with default-size pages and empty
// interactive form fields with the given names.
func NewWithForm(pages int, fieldNames ...string) pdf.Document {
	doc := New(pages).(*document)
	for _, name := range fieldNames {
		doc.Fields = append(doc.Fields, formField{Name: name})
	}
	return doc
}

type overlay struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value string  `json:"value"`
}

type page struct {
	Width    float64   `json:"width"`
	Height   float64   `json:"height"`
	Overlays []overlay `json:"overlays,omitempty"`
}

type formField struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type document struct {
	Format string      `json:"format"`
	Pages  []page      `json:"pages"`
	Fields []formField `json:"form_fields,omitempty"`
}

func (d *document) Form() pdf.Form { return &form{doc: d} }

func (d *document) FlattenForm() {
	// Filled values become static overlays on the first page footer area;
	// the interactive structures themselves are discarded.
	for _, f := range d.Fields {
		if f.Value == "" || len(d.Pages) == 0 {
			continue
		}
		d.Pages[0].Overlays = append(d.Pages[0].Overlays, overlay{
			X:     0,
			Y:     0,
			Value: fmt.Sprintf("%s: %s", f.Name, f.Value),
		})
	}
	d.Fields = nil
}

func (d *document) Overlay(pageNumber int, x, y float64, value string) error {
	if pageNumber < 1 || pageNumber > len(d.Pages) {
		return fmt.Errorf("formdoc: page %d out of range (1..%d)", pageNumber, len(d.Pages))
	}
	d.Pages[pageNumber-1].Overlays = append(d.Pages[pageNumber-1].Overlays, overlay{
		X:     x,
		Y:     y,
		Value: value,
	})
	return nil
}

func (d *document) PageCount() int { return len(d.Pages) }

func (d *document) PageSize(pageNumber int) (float64, float64, error) {
	if pageNumber < 1 || pageNumber > len(d.Pages) {
		return 0, 0, fmt.Errorf("formdoc: page %d out of range (1..%d)", pageNumber, len(d.Pages))
	}
	p := d.Pages[pageNumber-1]
	return p.Width, p.Height, nil
}

func (d *document) AddPage(width, height float64) int {
	d.Pages = append(d.Pages, page{Width: width, Height: height})
	return len(d.Pages)
}

func (d *document) Save() ([]byte, error) {
	return json.Marshal(d)
}

// form adapts document to the pdf.Form interface.
type form struct {
	doc *document
}

func (f *form) Fields() []pdf.FormField {
	fields := make([]pdf.FormField, 0, len(f.doc.Fields))
	for _, field := range f.doc.Fields {
		fields = append(fields, pdf.FormField{Name: field.Name, Value: field.Value})
	}
	return fields
}

func (f *form) Set(name, value string) error {
	for i := range f.doc.Fields {
		if f.doc.Fields[i].Name == name {
			f.doc.Fields[i].Value = value
			return nil
		}
	}
	return fmt.Errorf("formdoc: form field %q not found", name)
}

// Package pdf defines the boundary to the document rendering capability the
// signing engine depends on. The engine only needs to load a payload, read
// and fill its interactive form, flatten that form, place text overlays at
// page coordinates, and serialize the result; any renderer satisfying this
// contract can be swapped in.
package pdf

// Engine loads binary payloads into mutable document handles and composes
// fresh documents for generated artifacts.
type Engine interface {
	Load(data []byte) (Document, error)

	// Compose creates an empty document with the given number of pages, used
	// to build certificate and audit-log artifacts.
	Compose(pages int) Document
}

// Document is a loaded, mutable document.
type Document interface {
	// Form exposes the document's interactive form fields.
	Form() Form

	// FlattenForm irreversibly converts interactive form fields into static
	// content. Safe to call on a document with no form fields.
	FlattenForm()

	// Overlay places a text value at the given coordinates on a page.
	// Pages are numbered from 1.
	Overlay(page int, x, y float64, value string) error

	// PageCount reports the number of pages.
	PageCount() int

	// PageSize returns the dimensions of a page in points.
	PageSize(page int) (width, height float64, err error)

	// AddPage appends a blank page of the given dimensions and returns its
	// page number.
	AddPage(width, height float64) int

	// Save serializes the document to bytes.
	Save() ([]byte, error)
}

// Form is a document's interactive form.
type Form interface {
	// Fields lists the form fields in document order.
	Fields() []FormField

	// Set fills the named form field. Unknown names are an error.
	Set(name, value string) error
}

// FormField is a single interactive form field.
type FormField struct {
	Name  string
	Value string
}

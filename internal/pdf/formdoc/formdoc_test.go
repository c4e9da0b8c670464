package formdoc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	doc := NewWithForm(2, "name", "company")
	require.NoError(t, doc.Form().Set("name", "Ada Lovelace"))
	require.NoError(t, doc.Overlay(2, 100, 200, "signed here"))

	data, err := doc.Save()
	require.NoError(t, err)

	loaded, err := NewEngine().Load(data)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.PageCount())

	fields := loaded.Form().Fields()
	require.Len(t, fields, 2)
	require.Equal(t, "Ada Lovelace", fields[0].Value)
}

func TestLoadRejectsForeignPayload(t *testing.T) {
	_, err := NewEngine().Load([]byte(`{"format":"something-else"}`))
	require.Error(t, err)

	_, err = NewEngine().Load([]byte(`%PDF-1.7 binary`))
	require.Error(t, err)
}

func TestFlattenFormRemovesInteractiveFields(t *testing.T) {
	doc := NewWithForm(1, "name")
	require.NoError(t, doc.Form().Set("name", "Bob"))

	doc.FlattenForm()
	require.Empty(t, doc.Form().Fields())

	// Flattening is idempotent.
	doc.FlattenForm()
	require.Empty(t, doc.Form().Fields())
}

func TestOverlayOutOfRange(t *testing.T) {
	doc := New(1)
	require.Error(t, doc.Overlay(0, 0, 0, "x"))
	require.Error(t, doc.Overlay(2, 0, 0, "x"))
	require.NoError(t, doc.Overlay(1, 10, 10, "x"))
}

func TestPageSize(t *testing.T) {
	doc := New(1)
	w, h, err := doc.PageSize(1)
	require.NoError(t, err)
	require.Equal(t, DefaultPageWidth, w)
	require.Equal(t, DefaultPageHeight, h)

	page := doc.AddPage(300, 400)
	require.Equal(t, 2, page)
	w, h, err = doc.PageSize(2)
	require.NoError(t, err)
	require.Equal(t, 300.0, w)
	require.Equal(t, 400.0, h)
}

func TestSetUnknownFormField(t *testing.T) {
	doc := NewWithForm(1, "name")
	require.Error(t, doc.Form().Set("missing", "x"))
}

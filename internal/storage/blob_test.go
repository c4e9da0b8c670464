package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/documenso/documenso-sub011/internal/database/testutil"
)

func TestBlobRoundTrip(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store, err := NewGormBlobStore(db)
	require.NoError(t, err)

	payload := []byte{0x25, 0x50, 0x44, 0x46, 0x00, 0xff, 0x01}
	id, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestBlobGetReturnsCopy(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store, err := NewGormBlobStore(db)
	require.NoError(t, err)

	id, err := store.Put(context.Background(), []byte("original"))
	require.NoError(t, err)

	first, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	first[0] = 'X'

	second, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), second)
}

func TestBlobNotFound(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	store, err := NewGormBlobStore(db)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "5a0ab0f6-7a5e-4b8e-969a-ff54b19e5c3d")
	require.ErrorIs(t, err, ErrBlobNotFound)
}

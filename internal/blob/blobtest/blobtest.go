// Package blobtest holds the behaviour every blob backend must share.
package blobtest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelflow/internal/blob/core"
)

// Conformance exercises put, get, head, list and delete against store,
// which must start empty.
func Conformance(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()

	payload := []byte("Serial Number,Width\nPNL-1,100\n")
	info, err := store.Put(ctx, "uploads/panels/2024-06-03/b-1.csv", bytes.NewReader(payload), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"batch": "b-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads/panels/2024-06-03/b-1.csv", info.Key)
	assert.Equal(t, int64(len(payload)), info.Size)

	_, err = store.Put(ctx, "uploads/panels/2024-06-03/b-1.csv", bytes.NewReader(nil), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	_, err = store.Put(ctx, "../escape", bytes.NewReader(nil), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrInvalidKey)

	got, body, err := store.Get(ctx, info.Key)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, payload, data)
	assert.Equal(t, "text/csv", got.ContentType)

	head, err := store.Head(ctx, info.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), head.Size)

	_, err = store.Put(ctx, "uploads/items/2024-06-03/b-2.json", bytes.NewReader([]byte("[]")), core.PutOptions{})
	require.NoError(t, err)

	all, err := store.List(ctx, "uploads/")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "uploads/items/2024-06-03/b-2.json", all[0].Key)

	panels, err := store.List(ctx, "uploads/panels/")
	require.NoError(t, err)
	require.Len(t, panels, 1)

	_, err = store.Head(ctx, "uploads/missing.csv")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = store.Get(ctx, "uploads/missing.csv")
	require.ErrorIs(t, err, core.ErrNotFound)

	deleted, err := store.Delete(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = store.Head(ctx, info.Key)
	require.ErrorIs(t, err, core.ErrNotFound)
}

package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelflow/internal/blob/blobtest"
	"panelflow/internal/blob/core"
)

func TestFilesystemStoreConformance(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	blobtest.Conformance(t, s)
}

func TestFilesystemStoreLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "archive")
	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Root())
	assert.Equal(t, core.DriverFilesystem, s.Driver())
	ctx := context.Background()

	info, err := s.Put(ctx, "uploads/a.csv", bytes.NewReader([]byte("x")), core.PutOptions{Metadata: map[string]string{"kind": "panels"}})
	require.NoError(t, err)
	assert.Len(t, info.ETag, 64)
	assert.FileExists(t, filepath.Join(root, "uploads", "a.csv"))
	assert.FileExists(t, filepath.Join(root, "uploads", "a.csv.meta"))

	entries, err := os.ReadDir(filepath.Join(root, "uploads"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".upload-"), "temp file left behind: %s", e.Name())
	}

	_, err = s.Put(ctx, "uploads/b.meta", bytes.NewReader(nil), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrInvalidKey)
}

func TestFilesystemStorePresign(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Put(ctx, "k.csv", bytes.NewReader([]byte("x")), core.PutOptions{})
	require.NoError(t, err)

	link, err := s.PresignURL(ctx, "k.csv", core.SignedURLOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "file://"))
	assert.True(t, strings.HasSuffix(link, "/k.csv"))

	_, err = s.PresignURL(ctx, "k.csv", core.SignedURLOptions{Method: "PUT"})
	require.ErrorIs(t, err, core.ErrUnsupported)
	_, err = s.PresignURL(ctx, "missing.csv", core.SignedURLOptions{})
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestFilesystemStoreIgnoresOrphanSidecars(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "orphan.csv.meta"), []byte(`{"size":1}`), 0o600))

	infos, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

package blob

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var archivedAt = time.Date(2024, 6, 3, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60))

func TestArchiveKeyLayout(t *testing.T) {
	assert.Equal(t, "uploads/panels/2024-06-03/b-1.xlsx", ArchiveKey("panels", "b-1", `C:\drop\Tower.XLSX`, archivedAt))
	assert.Equal(t, "uploads/items/2024-06-03/b-2.bin", ArchiveKey("items", "b-2", "notes", archivedAt))
}

func TestUploadArchiveStoresPayloadWithMetadata(t *testing.T) {
	ctx := context.Background()
	archive := NewUploadArchive(NewMemory(), func() time.Time { return archivedAt })

	key, err := archive.Archive(ctx, "panels", "b-1", "drop/tower.csv", []byte("serial\nPNL-1\n"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/panels/2024-06-03/b-1.csv", key)

	info, rc, err := archive.store.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "serial\nPNL-1\n", string(body))
	assert.Equal(t, "text/csv", info.ContentType)
	assert.Equal(t, map[string]string{"batch": "b-1", "kind": "panels", "filename": "tower.csv"}, info.Metadata)

	_, err = archive.Archive(ctx, "panels", "b-1", "tower.csv", []byte("again"))
	require.ErrorIs(t, err, ErrExists)
}

func TestUploadArchiveListAndLink(t *testing.T) {
	ctx := context.Background()
	archive := NewUploadArchive(NewMockS3(), func() time.Time { return archivedAt })
	_, err := archive.Archive(ctx, "panels", "b-1", "a.csv", []byte("x"))
	require.NoError(t, err)
	_, err = archive.Archive(ctx, "items", "b-2", "b.json", []byte("[]"))
	require.NoError(t, err)

	all, err := archive.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	panels, err := archive.List(ctx, "panels")
	require.NoError(t, err)
	require.Len(t, panels, 1)

	link, err := archive.Link(ctx, panels[0].Key, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Signature")

	_, err = archive.Link(ctx, "private/key", time.Minute)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.Error(t, err)

	_, err = Open(ctx, Config{Driver: "tape"})
	require.Error(t, err)
}

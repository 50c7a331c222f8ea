package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

const uploadsPrefix = "uploads/"

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
}

// UploadArchive keeps raw import payloads under
// uploads/{kind}/{yyyy-mm-dd}/{batch}{ext}.
type UploadArchive struct {
	store Store
	now   func() time.Time
}

// NewUploadArchive wraps store. now defaults to time.Now.
func NewUploadArchive(store Store, now func() time.Time) *UploadArchive {
	if now == nil {
		now = time.Now
	}
	return &UploadArchive{store: store, now: now}
}

// ArchiveKey builds the key of an upload received at the given time.
func ArchiveKey(kind, batchID, filename string, at time.Time) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if _, ok := contentTypes[ext]; !ok {
		ext = ".bin"
	}
	return fmt.Sprintf("%s%s/%s/%s%s", uploadsPrefix, kind, at.UTC().Format(time.DateOnly), batchID, ext)
}

// Archive stores data and returns its key.
func (a *UploadArchive) Archive(ctx context.Context, kind, batchID, filename string, data []byte) (string, error) {
	key := ArchiveKey(kind, batchID, filename, a.now())
	contentType, ok := contentTypes[path.Ext(key)]
	if !ok {
		contentType = "application/octet-stream"
	}
	_, err := a.store.Put(ctx, key, bytes.NewReader(data), PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"batch":    batchID,
			"kind":     kind,
			"filename": path.Base(strings.ReplaceAll(filename, "\\", "/")),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive upload %s: %w", batchID, err)
	}
	return key, nil
}

// List returns archived uploads of kind, every kind when kind is empty.
func (a *UploadArchive) List(ctx context.Context, kind string) ([]Info, error) {
	prefix := uploadsPrefix
	if kind != "" {
		prefix += kind + "/"
	}
	return a.store.List(ctx, prefix)
}

// Link returns a time-limited download URL for an archived upload.
func (a *UploadArchive) Link(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !strings.HasPrefix(key, uploadsPrefix) {
		return "", fmt.Errorf("%w: %q is not an upload", ErrInvalidKey, key)
	}
	return a.store.PresignURL(ctx, key, SignedURLOptions{Expiry: expiry})
}

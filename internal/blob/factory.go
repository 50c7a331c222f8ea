package blob

import (
	"context"
	"fmt"

	"panelflow/internal/infra/blob/fs"
	"panelflow/internal/infra/blob/memory"
	infraS3 "panelflow/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend configuration.
type S3Config = infraS3.Config

// Config selects and configures a backend. An empty Driver means filesystem.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns a process-local store, used by tests and dry runs.
func NewMemory() Store { return memory.New() }

// NewFilesystem returns a store rooted at root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewS3 returns a store backed by an S3 compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3 returns an S3 store talking to an in-process fake bucket.
func NewMockS3() Store { return infraS3.NewMock(0) }

// Package blob stores raw audio bytes behind a small object-store interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kiranshivaraju/mindalert/internal/config"
)

var ErrNotFound = errors.New("blob not found")

// Store persists opaque objects by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New returns the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

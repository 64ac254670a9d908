// Package storage keeps exported files outside the database.
package storage

import (
	"context"
	"io"
)

// BlobStore stores opaque objects by key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) // returns the canonical key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a location the caller can download key from.
	URL(ctx context.Context, key string) (string, error)
}

package storage

import (
	"context"
	"io"
	"time"
)

// Store persists generated export files. Keys are slash separated and
// relative to the backend root.
type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	CleanupOlderThan(ctx context.Context, ttl time.Duration) ([]string, error)
}

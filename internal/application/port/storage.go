package port

import (
	"context"
	"time"
)

// ObjectStorage stores ticket images under bucket-relative paths
type ObjectStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
	// SignedURL returns an absolute URL that serves path until ttl elapses.
	SignedURL(path string, ttl time.Duration) (string, error)
}

// Package blob defines the object-storage collaborator used for
// attachments and other opaque binary payloads.
package blob

import (
	"context"
	"io"
)

// Config configures a Store adapter. Fields are adapter-specific; only
// the ones a given adapter reads apply.
type Config struct {
	LocalDir string
	Bucket   string
	Endpoint string
	Region   string
}

// Store puts, fetches, and removes binary objects by key.
type Store interface {
	Upload(ctx context.Context, key string, data io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

package store

import (
	"context"
	"io"
)

// BlobStore archives opaque payloads such as raw provider pages.
type BlobStore interface {
	// PutObject writes r under path and returns a URI for the stored object.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Package gcs archives raw provider pages in Google Cloud Storage.
//
// Each page is written once, in a single upload request, and never read back
// by the service.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// defaultContentType is used for pages archived without an explicit type.
const defaultContentType = "application/json"

// Config selects the archive bucket.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "raw" or "env/prod".
	Prefix string
}

// BlobStore archives raw pages under a bucket prefix.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates an archive backed by cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs archive: storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs archive: bucket is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName joins the prefix and p.
func (s *BlobStore) ObjectName(p string) string {
	p = strings.TrimLeft(p, "/")
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// PutObject archives one page and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("archive page: object path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("archive page %s: %w", p, err)
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	name := s.ObjectName(p)

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	// Disables chunking: pages fit in one request.
	w.ChunkSize = 0
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("archive page %s: %w (close: %v)", name, err, closeErr)
		}
		return "", fmt.Errorf("archive page %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive page %s: upload: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

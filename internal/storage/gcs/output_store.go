// Package gcs provides an OutputStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
)

// Config captures the parameters required to address the output objects.
type Config struct {
	Bucket string
	// Prefix is the object "directory" holding the images, without slashes
	// at either end.
	Prefix string
	// Codec selects the object extension and content type.
	Codec capture.Codec
}

// OutputStore writes captured images to a GCS bucket as <prefix>/<id>.<ext>.
type OutputStore struct {
	client *storage.Client
	bucket string
	prefix string
	codec  capture.Codec
}

// New creates a GCS-backed output store.
func New(client *storage.Client, cfg Config) (*OutputStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if !cfg.Codec.Valid() {
		return nil, fmt.Errorf("unsupported codec %q", cfg.Codec)
	}
	return &OutputStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		codec:  cfg.Codec,
	}, nil
}

func (s *OutputStore) objectName(id item.ID) string {
	name := id.String() + s.suffix()
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *OutputStore) suffix() string {
	return "." + s.codec.Extension()
}

func (s *OutputStore) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

// List returns the IDs that have an object with the active extension directly
// under the prefix.
func (s *OutputStore) List(ctx context.Context) (item.Set, error) {
	ids := make(item.Set)
	prefix := s.listPrefix()
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", s.bucket, prefix, err)
		}
		rest := strings.TrimPrefix(attrs.Name, prefix)
		if strings.Contains(rest, "/") || !strings.HasSuffix(rest, s.suffix()) {
			continue
		}
		id, err := item.ParseDecimal(strings.TrimSuffix(rest, s.suffix()))
		if err != nil {
			return nil, fmt.Errorf("%w: object %q: %v", capture.ErrMalformedIdentifier, attrs.Name, err)
		}
		ids.Add(id)
	}
	return ids, nil
}

// Put uploads data and returns a gs:// URI. GCS only exposes an object once
// the writer is closed, so a failed upload never becomes visible.
func (s *OutputStore) Put(ctx context.Context, id item.ID, data []byte) (string, error) {
	name := s.objectName(id)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = s.codec.ContentType()
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Delete removes id's object. A missing object is not an error.
func (s *OutputStore) Delete(ctx context.Context, id item.ID) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(id)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gs://%s/%s: %w", s.bucket, s.objectName(id), err)
	}
	return nil
}

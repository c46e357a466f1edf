// Package local implements the filesystem-backed output store and metadata
// source.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
)

// Config captures the parameters for the local output store.
type Config struct {
	// BaseDir is the directory holding one image per item.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Extension is the active codec's file extension, without the dot.
	Extension string `mapstructure:"extension" yaml:"extension"`
}

// OutputStore keeps captured images as <id>.<ext> files in a directory.
type OutputStore struct {
	baseDir string
	ext     string
}

// New creates the output directory if needed and checks it is writable.
func New(cfg Config) (*OutputStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	ext := strings.TrimPrefix(cfg.Extension, ".")
	if ext == "" {
		return nil, fmt.Errorf("extension is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &OutputStore{baseDir: cfg.BaseDir, ext: ext}, nil
}

// Path returns the file that holds id's image.
func (s *OutputStore) Path(id item.ID) string {
	return filepath.Join(s.baseDir, id.String()+"."+s.ext)
}

// List returns the IDs that already have an image with the active extension.
// Files with other extensions are ignored; a matching file whose stem is not
// a canonical decimal ID is reported as ErrMalformedIdentifier.
func (s *OutputStore) List(ctx context.Context) (item.Set, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir %s: %w", s.baseDir, err)
	}
	suffix := "." + s.ext
	ids := make(item.Set, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context canceled: %w", err)
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := item.ParseDecimal(strings.TrimSuffix(name, suffix))
		if err != nil {
			return nil, fmt.Errorf("%w: output file %q: %v", capture.ErrMalformedIdentifier, name, err)
		}
		ids.Add(id)
	}
	return ids, nil
}

// Put writes data for id. The bytes land in a hidden temp file first and are
// renamed into place, so an interrupted run never leaves a truncated image
// that the next reconciliation would count as done.
func (s *OutputStore) Put(ctx context.Context, id item.ID, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to write empty image for %s", id)
	}
	tmp, err := os.CreateTemp(s.baseDir, "."+id.String()+"-*.partial")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file: %w", err)
	}
	target := s.Path(id)
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return fmt.Sprintf("file://%s", target), nil
}

// Delete removes id's image. Removing a missing image is not an error.
func (s *OutputStore) Delete(_ context.Context, id item.ID) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.Path(id), err)
	}
	return nil
}

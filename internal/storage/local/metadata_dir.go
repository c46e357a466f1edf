package local

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/logging"
)

const (
	metadataSuffix   = ".json"
	metadataStemLen  = 64
	metadataIDOffset = metadataStemLen - item.MaxHexDigits
)

// MetadataDir reads expected IDs from a directory of <64 hex>.json files.
// The ID is the trailing 32 hex digits of the name.
type MetadataDir struct {
	dir    string
	strict bool
	logger *zap.Logger
}

// NewMetadataDir returns a metadata source rooted at dir.
func NewMetadataDir(dir string, strict bool, logger *zap.Logger) (*MetadataDir, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("metadata directory is required")
	}
	return &MetadataDir{dir: dir, strict: strict, logger: logging.OrNop(logger)}, nil
}

// ExpectedIDs scans the directory. Names outside the naming convention are
// skipped; a conforming name with non-hex content is ErrMalformedIdentifier
// in strict mode and skipped with a warning otherwise.
func (m *MetadataDir) ExpectedIDs(ctx context.Context) (item.Set, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read metadata dir %s: %w", m.dir, err)
	}
	ids := make(item.Set, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context canceled: %w", err)
		}
		if !entry.Type().IsRegular() {
			continue
		}
		id, ok, err := ParseMetadataName(entry.Name())
		if err != nil {
			if m.strict {
				return nil, err
			}
			m.logger.Warn("skipping malformed metadata file", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		if ok {
			ids.Add(id)
		}
	}
	return ids, nil
}

// ParseMetadataName extracts the ID from a metadata file name. ok is false
// for names that are not metadata files at all.
func ParseMetadataName(name string) (item.ID, bool, error) {
	if !strings.HasSuffix(name, metadataSuffix) {
		return item.ID{}, false, nil
	}
	stem := strings.TrimSuffix(name, metadataSuffix)
	if len(stem) != metadataStemLen {
		return item.ID{}, false, nil
	}
	id, err := item.ParseHex(stem[metadataIDOffset:])
	if err != nil {
		return item.ID{}, false, fmt.Errorf("%w: metadata file %q: %v", capture.ErrMalformedIdentifier, name, err)
	}
	return id, true, nil
}

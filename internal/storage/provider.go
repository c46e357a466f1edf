// Package storage selects the OutputStore implementation for a run.
// Callers depend on capture.OutputStore and stay unaware of whether images
// land on the local filesystem, in a GCS bucket, or in memory.
package storage

import (
	"context"
	"fmt"

	gcsapi "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/config"
	"github.com/JakeFAU/cardshot/internal/logging"
	"github.com/JakeFAU/cardshot/internal/storage/gcs"
	"github.com/JakeFAU/cardshot/internal/storage/local"
	"github.com/JakeFAU/cardshot/internal/storage/memory"
)

// CloseFunc releases whatever client backs a store.
type CloseFunc func() error

func noopClose() error { return nil }

// NewOutputStore builds the store named by cfg.Output.Provider.
func NewOutputStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (capture.OutputStore, CloseFunc, error) {
	logger = logging.OrNop(logger)
	codec := cfg.Codec()
	switch cfg.Output.Provider {
	case "", "local":
		store, err := local.New(local.Config{BaseDir: cfg.Output.Dir, Extension: codec.Extension()})
		if err != nil {
			return nil, nil, fmt.Errorf("init local output store: %w", err)
		}
		logger.Info("Using local output store", zap.String("dir", cfg.Output.Dir))
		return store, noopClose, nil
	case "memory":
		logger.Warn("Using in-memory output store; captured images are discarded at exit")
		return memory.NewOutputStore(), noopClose, nil
	case "gcs":
		client, err := gcsapi.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		// Fail fast on a missing bucket or missing permissions.
		if _, err := client.Bucket(cfg.Output.GCSBucket).Attrs(ctx); err != nil {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("Failed to close GCS client after bucket check failure", zap.Error(closeErr))
			}
			return nil, nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", cfg.Output.GCSBucket, err)
		}
		store, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Output.GCSBucket,
			Prefix: cfg.Output.Prefix,
			Codec:  codec,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs output store: %w", err)
		}
		logger.Info("Using GCS output store",
			zap.String("bucket", cfg.Output.GCSBucket),
			zap.String("prefix", cfg.Output.Prefix))
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown output provider %q", cfg.Output.Provider)
	}
}

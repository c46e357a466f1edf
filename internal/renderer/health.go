package renderer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/logging"
)

// HealthCheck makes every probe navigation even after one succeeds: the
// extra loads warm the page's fonts so the first real capture lays out its
// text correctly. It fails with ErrSourceUnreachable only when no probe
// loaded.
func HealthCheck(ctx context.Context, inst capture.Instance, src capture.Source, attempts int, backoff time.Duration, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	if attempts <= 0 {
		attempts = 1
	}
	var (
		ok      int
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		url := src.ProbeURL(attempt)
		err := inst.Navigate(ctx, url)
		if err == nil {
			err = inst.WaitLoaded(ctx, url)
		}
		if err == nil {
			ok++
			continue
		}
		lastErr = err
		logger.Debug("probe navigation failed", zap.Int("attempt", attempt), zap.String("url", url), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("health check canceled: %w", ctxErr)
		}
		if backoff > 0 && attempt < attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("health check canceled: %w", ctx.Err())
			}
		}
	}
	if ok == 0 {
		return fmt.Errorf("%w: %d probe navigations failed, last error: %v", capture.ErrSourceUnreachable, attempts, lastErr)
	}
	return nil
}

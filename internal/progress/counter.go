package progress

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/logging"
)

// Counter counts completed captures for the current run and logs each one.
type Counter struct {
	total    int64
	captured atomic.Int64
	logger   *zap.Logger
}

// NewCounter returns a Counter for a run with total pending items.
func NewCounter(total int, logger *zap.Logger) *Counter {
	return &Counter{total: int64(total), logger: logging.OrNop(logger)}
}

// Inc records one finished capture and returns the new count.
func (c *Counter) Inc() int64 {
	n := c.captured.Add(1)
	c.logger.Sugar().Infof("Captured %d/%d", n, c.total)
	return n
}

// Captured returns the number of finished captures.
func (c *Counter) Captured() int64 {
	return c.captured.Load()
}

// Total returns the number of items pending at the start of the run.
func (c *Counter) Total() int64 {
	return c.total
}

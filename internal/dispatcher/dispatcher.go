// Package dispatcher runs the capture worker pool over the shared queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/worker"
)

// Runner is one worker paired with the renderer instance it starts with.
type Runner interface {
	Run(ctx context.Context, inst capture.Instance) (worker.Stats, error)
}

// Slot binds a worker to its first renderer instance.
type Slot struct {
	Worker   Runner
	Instance capture.Instance
}

// Summary merges the stats of every worker in a run.
type Summary struct {
	Captured int
	Restarts int
	Aborted  []item.ID
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	slots []Slot
}

// New creates a Dispatcher.
func New(slots []Slot) *Dispatcher {
	return &Dispatcher{slots: slots}
}

// Run starts every worker and blocks until all of them have drained the
// queue. The first fatal error cancels the remaining workers; it is returned
// along with whatever the workers completed before stopping.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	if len(d.slots) == 0 {
		return Summary{}, errors.New("dispatcher has no workers")
	}
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu      sync.Mutex
		summary Summary
	)
	for i, slot := range d.slots {
		g.Go(func() error {
			stats, err := slot.Worker.Run(gctx, slot.Instance)
			mu.Lock()
			summary.Captured += stats.Captured
			summary.Restarts += stats.Restarts
			summary.Aborted = append(summary.Aborted, stats.Aborted...)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	err := g.Wait()
	sort.Slice(summary.Aborted, func(i, j int) bool { return summary.Aborted[i].Less(summary.Aborted[j]) })
	return summary, err
}

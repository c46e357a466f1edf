// Package reconcile compares the metadata set against stored outputs and
// removes images that no longer have metadata.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/logging"
	"github.com/JakeFAU/cardshot/internal/progress"
)

// Plan is the outcome of one reconciliation.
type Plan struct {
	Expected item.Set
	Actual   item.Set
	// Missing are expected items without an output, in ascending order.
	Missing []item.ID
	// Surplus are outputs without metadata. They have been deleted by the
	// time Reconcile returns.
	Surplus []item.ID
}

// AlreadyCaptured is the number of expected items that have an output.
func (p Plan) AlreadyCaptured() int {
	return p.Expected.Len() - len(p.Missing)
}

// Reconciler computes plans.
type Reconciler struct {
	logger  *zap.Logger
	emitter progress.Emitter
	runID   [16]byte
	now     func() time.Time
}

// New returns a Reconciler. emitter may be nil.
func New(logger *zap.Logger, emitter progress.Emitter, runID [16]byte) *Reconciler {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Reconciler{
		logger:  logging.OrNop(logger),
		emitter: emitter,
		runID:   runID,
		now:     time.Now,
	}
}

// Reconcile lists both sides, deletes every surplus output and returns the
// missing items. A failed deletion aborts the run.
func (r *Reconciler) Reconcile(ctx context.Context, metadata capture.MetadataSource, output capture.OutputStore) (Plan, error) {
	expected, err := metadata.ExpectedIDs(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list expected items: %w", err)
	}
	actual, err := output.List(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list outputs: %w", err)
	}

	plan := Plan{
		Expected: expected,
		Actual:   actual,
		Missing:  expected.Difference(actual).Sorted(),
		Surplus:  actual.Difference(expected).Sorted(),
	}

	for _, id := range plan.Surplus {
		if err := output.Delete(ctx, id); err != nil {
			return Plan{}, fmt.Errorf("remove surplus output %s: %w", id, err)
		}
		r.emitter.Emit(progress.Event{
			RunID:  r.runID,
			TS:     r.now(),
			Stage:  progress.StageOutputRemoved,
			Item:   id.String(),
			Worker: -1,
		})
	}
	if len(plan.Surplus) > 0 {
		r.logger.Sugar().Infof("Removed %d images that have no corresponding metadata.", len(plan.Surplus))
	}
	r.logger.Sugar().Infof("%d/%d images already captured.", plan.AlreadyCaptured(), plan.Expected.Len())
	return plan, nil
}

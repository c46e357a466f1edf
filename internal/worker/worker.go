// Package worker implements the per-renderer capture loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/clock/system"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/logging"
	"github.com/JakeFAU/cardshot/internal/metrics"
	"github.com/JakeFAU/cardshot/internal/progress"
)

var errNoInstance = errors.New("no renderer instance")

// Clock supplies timestamps for events and notices.
type Clock interface {
	Now() time.Time
}

// Hasher fingerprints encoded images for completion notices.
type Hasher interface {
	Hash(data []byte) string
}

// Config controls Worker behavior.
type Config struct {
	// ID labels the worker in logs and events.
	ID     int
	RunID  [16]byte
	Source capture.Source
	// Capture is the resolution every screenshot must have.
	Capture capture.Resolution
	// MaxAttempts bounds attempts per item on one renderer instance.
	MaxAttempts int
	// MaxRestarts bounds how often a stuck item may replace the instance.
	MaxRestarts  int
	RetryBackoff time.Duration
	// Topic is the completion notice topic; empty disables notices.
	Topic string
}

// Deps are the collaborators a Worker needs. Publisher may be nil.
type Deps struct {
	Queue     capture.Queue
	Factory   capture.InstanceFactory
	Encoder   capture.Encoder
	Store     capture.OutputStore
	Counter   *progress.Counter
	Emitter   progress.Emitter
	Publisher capture.Publisher
	Hasher    Hasher
	Clock     Clock
}

// Stats summarises one worker's run.
type Stats struct {
	Captured int
	Restarts int
	Aborted  []item.ID
}

// Notice is the completion message published per captured item.
type Notice struct {
	RunID      string    `json:"run_id"`
	Item       string    `json:"item"`
	URI        string    `json:"uri"`
	SHA256     string    `json:"sha256"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// Worker drives one renderer instance through the shared queue. It keeps one
// item of lookahead so that the next page can load while the current capture
// is encoded and written.
type Worker struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	inst      capture.Instance
	preloaded bool
	stats     Stats
}

// New constructs a Worker.
func New(cfg Config, deps Deps, logger *zap.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxRestarts < 0 {
		cfg.MaxRestarts = 0
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	return &Worker{
		cfg:    cfg,
		deps:   deps,
		logger: logging.OrNop(logger).With(zap.Int("worker", cfg.ID)),
	}
}

// Run captures items until the queue is drained. inst is the worker's first
// renderer instance; the worker owns it from here on and closes whatever
// instance it holds when it returns. Only fatal errors and cancellation are
// returned; an aborted item is recorded in Stats and the worker moves on.
func (w *Worker) Run(ctx context.Context, inst capture.Instance) (Stats, error) {
	w.inst = inst
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer w.closeInstance()

	current, ok := w.deps.Queue.Pop()
	for ok {
		if err := ctx.Err(); err != nil {
			return w.stats, fmt.Errorf("worker %d canceled: %w", w.cfg.ID, err)
		}
		next, hasNext := w.deps.Queue.Pop()
		var lookahead *item.ID
		if hasNext {
			lookahead = &next
		}

		err := w.captureItem(ctx, current, lookahead)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrItemAborted):
			w.stats.Aborted = append(w.stats.Aborted, current)
		default:
			return w.stats, err
		}
		current, ok = next, hasNext
	}
	return w.stats, nil
}

// captureItem runs bounded attempts on the current instance and escalates to
// a fresh instance when they are exhausted.
func (w *Worker) captureItem(ctx context.Context, id item.ID, next *item.ID) error {
	start := w.deps.Clock.Now()
	w.emit(progress.StageCaptureStart, id, 0, 0, 0, "")

	restarts := 0
	for {
		uri, data, attempts, err := w.attemptAll(ctx, id, next)
		if err == nil {
			w.finish(ctx, id, uri, data, attempts, start)
			return nil
		}
		if capture.IsFatal(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("capture %s canceled: %w", id, ctxErr)
		}
		if restarts >= w.cfg.MaxRestarts {
			w.logger.Error("Giving up on item", zap.Stringer("item", id), zap.Int("restarts", restarts), zap.Error(err))
			w.emit(progress.StageItemAborted, id, attempts, 0, 0, err.Error())
			return fmt.Errorf("%w: %s after %d restarts: %v", capture.ErrItemAborted, id, restarts, err)
		}
		restarts++
		w.stats.Restarts++
		w.logger.Warn("Renderer instance is stuck, restarting", zap.Stringer("item", id), zap.Error(err))
		w.emit(progress.StageRendererRestart, id, attempts, 0, 0, err.Error())
		if err := w.restart(ctx); err != nil {
			return err
		}
	}
}

func (w *Worker) attemptAll(ctx context.Context, id item.ID, next *item.ID) (string, []byte, int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			w.emit(progress.StageCaptureRetry, id, attempt, 0, 0, lastErr.Error())
			if err := sleep(ctx, w.cfg.RetryBackoff); err != nil {
				return "", nil, attempt, err
			}
		}
		uri, data, err := w.attempt(ctx, id, next)
		if err == nil {
			return uri, data, attempt, nil
		}
		w.preloaded = false
		if capture.IsFatal(err) {
			return "", nil, attempt, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", nil, attempt, fmt.Errorf("attempt canceled: %w", ctxErr)
		}
		lastErr = err
		w.logger.Debug("capture attempt failed",
			zap.Stringer("item", id),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return "", nil, w.cfg.MaxAttempts, lastErr
}

func (w *Worker) attempt(ctx context.Context, id item.ID, next *item.ID) (string, []byte, error) {
	if w.inst == nil {
		return "", nil, &capture.AttemptError{Stage: capture.StageNavigate, Err: errNoInstance}
	}
	url := w.cfg.Source.URL(id)
	if !w.preloaded {
		if err := w.inst.Navigate(ctx, url); err != nil {
			return "", nil, &capture.AttemptError{Stage: capture.StageNavigate, Err: err}
		}
	}
	w.preloaded = false
	if err := w.inst.WaitLoaded(ctx, url); err != nil {
		return "", nil, &capture.AttemptError{Stage: capture.StageLoad, Err: err}
	}
	shot, err := w.inst.Screenshot(ctx)
	if err != nil {
		return "", nil, &capture.AttemptError{Stage: capture.StageScreenshot, Err: err}
	}
	if !shot.Matches(w.cfg.Capture) {
		return "", nil, fmt.Errorf("%w: item %s captured at %dx%d, want %s",
			capture.ErrDimensionMismatch, id, shot.Width, shot.Height, w.cfg.Capture)
	}

	// Start loading the next page while this one is encoded.
	if next != nil {
		if err := w.inst.Navigate(ctx, w.cfg.Source.URL(*next)); err != nil {
			w.logger.Debug("preload failed", zap.Stringer("item", *next), zap.Error(err))
		} else {
			w.preloaded = true
		}
	}

	data, err := w.deps.Encoder.Encode(shot.PNG)
	if err != nil {
		return "", nil, &capture.AttemptError{Stage: capture.StageEncode, Err: err}
	}
	uri, err := w.deps.Store.Put(ctx, id, data)
	if err != nil {
		return "", nil, &capture.AttemptError{Stage: capture.StageWrite, Err: err}
	}
	return uri, data, nil
}

func (w *Worker) finish(ctx context.Context, id item.ID, uri string, data []byte, attempts int, start time.Time) {
	w.stats.Captured++
	if w.deps.Counter != nil {
		w.deps.Counter.Inc()
	}
	if q, ok := w.deps.Queue.(interface{ Len() int }); ok {
		metrics.SetItemsPending(q.Len())
	}
	now := w.deps.Clock.Now()
	w.emit(progress.StageCaptureDone, id, attempts, int64(len(data)), now.Sub(start), uri)

	if w.deps.Publisher == nil || w.cfg.Topic == "" {
		return
	}
	notice := Notice{
		RunID:      progress.Event{RunID: w.cfg.RunID}.RunUUID().String(),
		Item:       id.String(),
		URI:        uri,
		Bytes:      len(data),
		CapturedAt: now.UTC(),
	}
	if w.deps.Hasher != nil {
		notice.SHA256 = w.deps.Hasher.Hash(data)
	}
	if _, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, notice); err != nil {
		w.logger.Warn("publish completion notice failed", zap.Stringer("item", id), zap.Error(err))
	}
}

// restart replaces the current instance. A failed launch is fatal.
func (w *Worker) restart(ctx context.Context) error {
	w.closeInstance()
	inst, err := w.deps.Factory.New(ctx)
	metrics.ObserveRendererLaunch(err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("restart canceled: %w", ctxErr)
		}
		w.logger.Error("Failed to launch replacement renderer", zap.Error(err))
		return fmt.Errorf("worker %d: %w: %w", w.cfg.ID, capture.ErrRendererLaunch, err)
	}
	w.inst = inst
	return nil
}

func (w *Worker) closeInstance() {
	w.preloaded = false
	if w.inst == nil {
		return
	}
	if err := w.inst.Close(); err != nil {
		w.logger.Debug("closing renderer instance", zap.Error(err))
	}
	w.inst = nil
}

func (w *Worker) emit(stage progress.Stage, id item.ID, attempt int, size int64, dur time.Duration, note string) {
	w.deps.Emitter.Emit(progress.Event{
		RunID:   w.cfg.RunID,
		TS:      w.deps.Clock.Now(),
		Stage:   stage,
		Item:    id.String(),
		Worker:  w.cfg.ID,
		Attempt: attempt,
		Bytes:   size,
		Dur:     dur,
		Note:    note,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	}
}

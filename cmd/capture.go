package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cardshot/internal/api"
	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/config"
	"github.com/JakeFAU/cardshot/internal/dispatcher"
	"github.com/JakeFAU/cardshot/internal/hash/sha256"
	"github.com/JakeFAU/cardshot/internal/imagery"
	"github.com/JakeFAU/cardshot/internal/metrics"
	"github.com/JakeFAU/cardshot/internal/preflight"
	"github.com/JakeFAU/cardshot/internal/progress"
	"github.com/JakeFAU/cardshot/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/cardshot/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/cardshot/internal/queue/memory"
	"github.com/JakeFAU/cardshot/internal/reconcile"
	"github.com/JakeFAU/cardshot/internal/renderer"
	"github.com/JakeFAU/cardshot/internal/storage"
	"github.com/JakeFAU/cardshot/internal/storage/local"
	"github.com/JakeFAU/cardshot/internal/storage/postgres"
	"github.com/JakeFAU/cardshot/internal/worker"
)

// noServerMessage tells the operator how to bring up the card page server.
const noServerMessage = "No server running. Start it with ./bin/serve_website_static"

// newInstanceFactory is swapped in tests that must not launch Chrome.
var newInstanceFactory = func(cfg config.Config, logger *zap.Logger) (capture.InstanceFactory, error) {
	return renderer.NewFactory(renderer.Config{
		Capture:              cfg.CaptureResolution(),
		DeviceScaleFactor:    cfg.Renderer.DeviceScaleFactor,
		NavigationTimeout:    cfg.NavigationTimeout(),
		Headless:             cfg.Renderer.Headless,
		ExecPath:             cfg.Renderer.ExecPath,
		NavigationsPerSecond: cfg.Renderer.NavigationsPerSecond,
	}, logger)
}

func newCaptureCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Captures an image for every card whose metadata has no image yet",
		Long: `Reconciles the metadata directory against the output store, deletes images
that no longer have metadata, and captures the missing ones from the card page
server with a pool of headless Chrome instances.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if workers > 0 {
				e.cfg.Worker.PoolSize = workers
			}
			return runCapture(cmd.Context(), e.cfg, e.logger)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of Chrome instances (overrides worker.pool_size)")
	return cmd
}

func runCapture(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	runID, err := progress.NewRunID()
	if err != nil {
		return err
	}

	status := api.NewProgressHandler(runID, time.Now(), logger.Named("api"))
	sinkList := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}
	if cfg.Metrics.ListenAddr != "" {
		promSink, err := sinks.NewPrometheusSink(nil)
		if err != nil {
			return fmt.Errorf("init prometheus sink: %w", err)
		}
		sinkList = append(sinkList, promSink)
		srv, err := metrics.Start(cfg.Metrics.ListenAddr, logger, status.Routes)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}
	if cfg.Ledger.DSN != "" {
		ledger, err := postgres.NewEventStore(ctx, postgres.EventStoreConfig{
			DSN:      cfg.Ledger.DSN,
			Table:    cfg.Ledger.Table,
			MaxConns: cfg.Ledger.MaxConns,
		})
		if err != nil {
			return err
		}
		sinkList = append(sinkList, ledger)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinkList...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	}()
	emitRun := func(stage progress.Stage, note string) {
		hub.Emit(progress.Event{RunID: runID, TS: time.Now(), Stage: stage, Worker: -1, Note: note})
	}
	emitRun(progress.StageRunStart, "")

	store, closeStore, err := storage.NewOutputStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close output store", zap.Error(err))
		}
	}()
	metadata, err := local.NewMetadataDir(cfg.Metadata.Dir, cfg.Metadata.Strict, logger)
	if err != nil {
		return err
	}
	plan, err := reconcile.New(logger, hub, runID).Reconcile(ctx, metadata, store)
	if err != nil {
		return err
	}
	if len(plan.Missing) == 0 {
		logger.Info("All images already captured.")
		emitRun(progress.StageRunDone, "nothing to capture")
		status.Finish(nil)
		return nil
	}

	logger.Sugar().Infof("Capturing at %s then resizing to %s.", cfg.CaptureResolution(), cfg.OutputResolution())

	if cfg.Renderer.Preflight {
		checker := preflight.New(preflight.Config{Timeout: cfg.NavigationTimeout()})
		if _, err := checker.Check(ctx, cfg.Source().ProbeURL(0)); err != nil {
			logger.Error(noServerMessage, zap.Error(err))
			return &exitError{code: exitFatal, err: fmt.Errorf("%s: %w", noServerMessage, err)}
		}
	}

	factory, err := newInstanceFactory(cfg, logger.Named("renderer"))
	if err != nil {
		return err
	}
	instances, err := launchInstances(ctx, factory, min(cfg.Worker.PoolSize, len(plan.Missing)), cfg, logger)
	if err != nil {
		if errors.Is(err, capture.ErrSourceUnreachable) {
			logger.Error(noServerMessage)
			return &exitError{code: exitFatal, err: fmt.Errorf("%s: %w", noServerMessage, err)}
		}
		return err
	}

	encoder, err := imagery.NewEncoder(cfg.Codec(), cfg.Capture.JPEGQuality, cfg.OutputResolution())
	if err != nil {
		closeAll(instances, logger)
		return err
	}
	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		closeAll(instances, logger)
		return err
	}
	defer closePublisher()

	queue := queuememory.NewQueue(plan.Missing)
	metrics.SetItemsPending(queue.Len())
	counter := progress.NewCounter(len(plan.Missing), logger)
	status.Attach(counter)
	hasher := sha256.New()

	slots := make([]dispatcher.Slot, len(instances))
	for i, inst := range instances {
		w := worker.New(worker.Config{
			ID:           i,
			RunID:        runID,
			Source:       cfg.Source(),
			Capture:      cfg.CaptureResolution(),
			MaxAttempts:  cfg.Worker.MaxAttempts,
			MaxRestarts:  cfg.Worker.MaxRestarts,
			RetryBackoff: cfg.RetryBackoff(),
			Topic:        cfg.PubSub.TopicName,
		}, worker.Deps{
			Queue:     queue,
			Factory:   factory,
			Encoder:   encoder,
			Store:     store,
			Counter:   counter,
			Emitter:   hub,
			Publisher: publisher,
			Hasher:    hasher,
		}, logger.Named("worker"))
		slots[i] = dispatcher.Slot{Worker: w, Instance: inst}
	}

	summary, err := dispatcher.New(slots).Run(ctx)
	status.Finish(summary.Aborted)
	emitRun(progress.StageRunDone, fmt.Sprintf("captured=%d aborted=%d", summary.Captured, len(summary.Aborted)))
	if err != nil {
		return fmt.Errorf("capture run: %w", err)
	}
	logger.Info("Capture finished",
		zap.Int("captured", summary.Captured),
		zap.Int("restarts", summary.Restarts),
		zap.Int("aborted", len(summary.Aborted)))
	if len(summary.Aborted) > 0 {
		ids := make([]string, len(summary.Aborted))
		for i, id := range summary.Aborted {
			ids[i] = id.String()
		}
		return &exitError{
			code: exitAborted,
			err:  fmt.Errorf("%w: %d items could not be captured: %v", capture.ErrItemAborted, len(ids), ids),
		}
	}
	return nil
}

// launchInstances starts n renderer instances concurrently and health-checks
// each against the card page server. On any failure every instance that did
// start is closed.
func launchInstances(ctx context.Context, factory capture.InstanceFactory, n int, cfg config.Config, logger *zap.Logger) ([]capture.Instance, error) {
	instances := make([]capture.Instance, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range instances {
		g.Go(func() error {
			inst, err := factory.New(gctx)
			metrics.ObserveRendererLaunch(err)
			if err != nil {
				return fmt.Errorf("launch renderer %d: %w: %w", i, capture.ErrRendererLaunch, err)
			}
			instances[i] = inst
			return renderer.HealthCheck(gctx, inst, cfg.Source(), cfg.Renderer.ProbeAttempts, cfg.ProbeBackoff(), logger)
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(instances, logger)
		return nil, err
	}
	return instances, nil
}

func closeAll(instances []capture.Instance, logger *zap.Logger) {
	for _, inst := range instances {
		if inst == nil {
			continue
		}
		if err := inst.Close(); err != nil {
			logger.Debug("close renderer", zap.Error(err))
		}
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (capture.Publisher, func(), error) {
	if cfg.PubSub.TopicName == "" {
		return nil, func() {}, nil
	}
	pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { _ = pub.Close() }, nil
}

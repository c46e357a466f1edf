package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cardshot/internal/progress"
)

// PrometheusSink exports capture progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted     prometheus.Counter
	captures        *prometheus.CounterVec
	captureBytes    prometheus.Counter
	captureDuration prometheus.Histogram
	restarts        prometheus.Counter
	outputsRemoved  prometheus.Counter
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardshot_runs_started_total",
			Help: "Capture runs started.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardshot_capture_events_total",
			Help: "Capture milestones partitioned by result.",
		}, []string{"result"}),
		captureBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardshot_capture_bytes_total",
			Help: "Encoded bytes written for captured items.",
		}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardshot_capture_duration_seconds",
			Help:    "Wall time per captured item, including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardshot_renderer_restarts_total",
			Help: "Renderer instances replaced after exhausting attempts.",
		}),
		outputsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardshot_outputs_removed_total",
			Help: "Surplus output images deleted by reconciliation.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.captures,
		s.captureBytes,
		s.captureDuration,
		s.restarts,
		s.outputsRemoved,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageCaptureDone:
			s.captures.WithLabelValues("success").Inc()
			if evt.Bytes > 0 {
				s.captureBytes.Add(float64(evt.Bytes))
			}
			if evt.Dur > 0 {
				s.captureDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageCaptureRetry:
			s.captures.WithLabelValues("retry").Inc()
		case progress.StageItemAborted:
			s.captures.WithLabelValues("aborted").Inc()
		case progress.StageRendererRestart:
			s.restarts.Inc()
		case progress.StageOutputRemoved:
			s.outputsRemoved.Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

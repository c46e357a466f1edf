// Package renderer drives headless Chrome through chromedp. Each Instance
// owns its own browser process with a single tab.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/logging"
	"github.com/JakeFAU/cardshot/internal/policy/ratelimit"
)

// ErrNoNavigation is returned by WaitLoaded when no navigation to the given
// URL is in flight.
var ErrNoNavigation = errors.New("no navigation in flight")

// Config controls how browser instances are launched.
type Config struct {
	// Capture is the size every screenshot must have, in device pixels.
	Capture capture.Resolution
	// DeviceScaleFactor renders the page at a higher pixel density. The CSS
	// viewport is Capture divided by this factor.
	DeviceScaleFactor float64
	NavigationTimeout time.Duration
	Headless          bool
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string
	// NavigationsPerSecond throttles navigations across every instance from
	// one Factory. Zero disables the limit.
	NavigationsPerSecond float64
}

// Factory launches Chrome instances.
type Factory struct {
	cfg     Config
	logger  *zap.Logger
	limiter *ratelimit.Limiter
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(cfg Config, logger *zap.Logger) (*Factory, error) {
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return nil, fmt.Errorf("capture resolution must be positive, got %s", cfg.Capture)
	}
	if cfg.DeviceScaleFactor <= 0 {
		cfg.DeviceScaleFactor = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.NavigationsPerSecond < 0 {
		return nil, fmt.Errorf("navigations per second must be >= 0")
	}
	f := &Factory{cfg: cfg, logger: logging.OrNop(logger)}
	if cfg.NavigationsPerSecond > 0 {
		f.limiter = ratelimit.New(ratelimit.Config{PerSecond: cfg.NavigationsPerSecond, Burst: 1})
	}
	return f, nil
}

// Viewport is the CSS size of the page.
func (f *Factory) Viewport() (int, int) {
	return viewport(f.cfg.Capture, f.cfg.DeviceScaleFactor)
}

func viewport(c capture.Resolution, scale float64) (int, int) {
	return int(float64(c.Width)/scale + 0.5), int(float64(c.Height)/scale + 0.5)
}

// New starts a browser, opens its tab and applies the device metrics.
func (f *Factory) New(ctx context.Context) (capture.Instance, error) {
	vw, vh := f.Viewport()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(vw, vh),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}

	// The browser outlives ctx; it is torn down by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	stopForward := forwardCancel(ctx, cancel)
	err := chromedp.Run(browserCtx)
	stopForward()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer setupCancel()
	metrics := emulation.SetDeviceMetricsOverride(int64(vw), int64(vh), f.cfg.DeviceScaleFactor, false)
	if err := chromedp.Run(setupCtx, metrics); err != nil {
		cancel()
		return nil, fmt.Errorf("set device metrics: %w", err)
	}

	f.logger.Debug("Launched renderer instance",
		zap.Int("viewport_width", vw),
		zap.Int("viewport_height", vh),
		zap.Float64("scale", f.cfg.DeviceScaleFactor))

	return &Instance{
		tabCtx:  browserCtx,
		cancel:  cancel,
		timeout: f.cfg.NavigationTimeout,
		limiter: f.limiter,
	}, nil
}

// Instance is one Chrome process with one tab.
type Instance struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	limiter *ratelimit.Limiter

	mu        sync.Mutex
	pending   *navigation
	closeOnce sync.Once
}

type navigation struct {
	url    string
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Navigate starts loading url in the background. A navigation that is still
// in flight is abandoned first.
func (i *Instance) Navigate(ctx context.Context, url string) error {
	if err := i.tabCtx.Err(); err != nil {
		return fmt.Errorf("renderer closed: %w", err)
	}
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx, url); err != nil {
			return fmt.Errorf("wait navigation budget: %w", err)
		}
	}
	i.abandonPending()

	navCtx, cancel := context.WithTimeout(i.tabCtx, i.timeout)
	nav := &navigation{url: url, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(nav.done)
		nav.err = chromedp.Run(navCtx, chromedp.Navigate(url))
	}()

	i.mu.Lock()
	i.pending = nav
	i.mu.Unlock()
	return nil
}

// WaitLoaded blocks until the in-flight navigation to url has loaded.
func (i *Instance) WaitLoaded(ctx context.Context, url string) error {
	i.mu.Lock()
	nav := i.pending
	i.mu.Unlock()
	if nav == nil || nav.url != url {
		return fmt.Errorf("%w: %s", ErrNoNavigation, url)
	}

	select {
	case <-nav.done:
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", url, ctx.Err())
	}

	i.mu.Lock()
	if i.pending == nav {
		i.pending = nil
	}
	i.mu.Unlock()
	nav.cancel()
	if nav.err != nil {
		return fmt.Errorf("navigate %s: %w", url, nav.err)
	}
	return nil
}

// Screenshot captures the viewport as PNG and reports its pixel size.
func (i *Instance) Screenshot(ctx context.Context) (capture.Shot, error) {
	runCtx, cancel := context.WithTimeout(i.tabCtx, i.timeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return capture.Shot{}, fmt.Errorf("capture screenshot: %w", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return capture.Shot{}, fmt.Errorf("read screenshot header: %w", err)
	}
	return capture.Shot{PNG: buf, Width: cfg.Width, Height: cfg.Height}, nil
}

// Close kills the browser. It is idempotent.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		i.mu.Lock()
		nav := i.pending
		i.pending = nil
		i.mu.Unlock()
		if nav != nil {
			nav.cancel()
		}
		i.cancel()
		if nav != nil {
			<-nav.done
		}
	})
	return nil
}

func (i *Instance) abandonPending() {
	i.mu.Lock()
	nav := i.pending
	i.pending = nil
	i.mu.Unlock()
	if nav == nil {
		return
	}
	nav.cancel()
	<-nav.done
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Package colorize renders tinted copies of the grayscale cloak animation.
package colorize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cardshot/internal/imagery"
	"github.com/JakeFAU/cardshot/internal/logging"
)

// Config controls a Colorizer.
type Config struct {
	SourceDir   string
	DestDir     string
	FirstFrame  int
	LastFrame   int
	Parallelism int
	// Palette defaults to imagery.DefaultPalette.
	Palette []imagery.Tint
}

// Colorizer writes <DestDir>/<color>/frame-NNNNNNNN.png for every frame and
// palette color.
type Colorizer struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg.
func New(cfg Config, logger *zap.Logger) (*Colorizer, error) {
	if cfg.SourceDir == "" || cfg.DestDir == "" {
		return nil, errors.New("source and destination directories are required")
	}
	if cfg.FirstFrame < 0 || cfg.FirstFrame > cfg.LastFrame {
		return nil, fmt.Errorf("invalid frame range %d..%d", cfg.FirstFrame, cfg.LastFrame)
	}
	if len(cfg.Palette) == 0 {
		cfg.Palette = imagery.DefaultPalette
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return &Colorizer{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// FrameName returns the file name of frame n.
func FrameName(n int) string {
	return fmt.Sprintf("frame-%08d.png", n)
}

// Run processes every frame in the range and returns how many were read.
func (c *Colorizer) Run(ctx context.Context) (int, error) {
	for _, t := range c.cfg.Palette {
		if err := os.MkdirAll(filepath.Join(c.cfg.DestDir, t.Name), 0o750); err != nil {
			return 0, fmt.Errorf("create %s output dir: %w", t.Name, err)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)
	for n := c.cfg.FirstFrame; n <= c.cfg.LastFrame; n++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("colorize canceled: %w", err)
			}
			return c.frame(n)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return c.cfg.LastFrame - c.cfg.FirstFrame + 1, nil
}

func (c *Colorizer) frame(n int) error {
	name := FrameName(n)
	src := filepath.Join(c.cfg.SourceDir, name)
	raw, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("read frame %s: %w", src, err)
	}
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("decode frame %s: %w", src, err)
	}
	for _, t := range c.cfg.Palette {
		out := filepath.Join(c.cfg.DestDir, t.Name, name)
		if t.IsBlack() {
			if err := os.WriteFile(out, raw, 0o600); err != nil {
				return fmt.Errorf("copy %s: %w", out, err)
			}
			continue
		}
		if err := imaging.Save(imagery.Colorize(img, t), out); err != nil {
			return fmt.Errorf("save %s: %w", out, err)
		}
	}
	c.logger.Debug("colorized frame", zap.Int("frame", n))
	return nil
}

// Package optimize resizes and re-encodes the hand-made source art the card
// pages are built from.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cardshot/internal/imagery"
	"github.com/JakeFAU/cardshot/internal/logging"
)

// framePrefix marks animation frames, which the colorize command owns.
const framePrefix = "frame-"

// ErrMissingSettings is returned for a source file with no settings entry.
var ErrMissingSettings = errors.New("no optimization settings")

// Config controls an Optimizer.
type Config struct {
	SourceDir   string
	DestDir     string
	Parallelism int
}

// Optimizer walks SourceDir and writes optimized copies under DestDir.
type Optimizer struct {
	cfg       Config
	settings  SettingsFile
	compactor Compactor
	logger    *zap.Logger
}

// Result describes one written file.
type Result struct {
	Source string
	Output string
	// Transparent is true when the output kept its alpha channel.
	Transparent bool
}

// New validates cfg. compactor may be nil.
func New(cfg Config, settings SettingsFile, compactor Compactor, logger *zap.Logger) (*Optimizer, error) {
	if strings.TrimSpace(cfg.SourceDir) == "" {
		return nil, errors.New("source directory is required")
	}
	if strings.TrimSpace(cfg.DestDir) == "" {
		return nil, errors.New("destination directory is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	return &Optimizer{cfg: cfg, settings: settings, compactor: compactor, logger: logging.OrNop(logger)}, nil
}

// Run optimizes every eligible file. The first failure stops the run.
func (o *Optimizer) Run(ctx context.Context) ([]Result, error) {
	sources, err := o.collect()
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i, rel := range sources {
		g.Go(func() error {
			res, err := o.File(gctx, rel)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collect lists source files relative to SourceDir. Directories, files
// without an extension and animation frames are skipped.
func (o *Optimizer) collect() ([]string, error) {
	var out []string
	err := filepath.WalkDir(o.cfg.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Ext(d.Name()) == "" || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.Contains(d.Name(), framePrefix) {
			return nil
		}
		rel, err := filepath.Rel(o.cfg.SourceDir, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", o.cfg.SourceDir, err)
	}
	return out, nil
}

// File optimizes the source at rel, relative to SourceDir.
func (o *Optimizer) File(ctx context.Context, rel string) (Result, error) {
	settings, ok := o.settings.Lookup(rel)
	if !ok {
		return Result{}, fmt.Errorf("%w for %s", ErrMissingSettings, rel)
	}
	src := filepath.Join(o.cfg.SourceDir, rel)
	img, err := imaging.Open(src)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", src, err)
	}

	transparent := imagery.UsesAlpha(img)
	if imagery.HasAlphaChannel(img) && !transparent {
		o.logger.Info("Alpha channel unused, writing a jpeg", zap.String("source", rel))
		img = imagery.DiscardAlpha(img)
	}
	switch {
	case transparent && settings.JPEGQuality != 0:
		return Result{}, fmt.Errorf("%s keeps transparency and is written as png; set jpeg_quality to 0", rel)
	case !transparent && settings.JPEGQuality == 0:
		return Result{}, fmt.Errorf("%s is written as jpeg; set jpeg_quality above 0", rel)
	}

	img, err = resizeToWidth(img, settings.Width)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", rel, err)
	}
	if settings.P3ToSRGB {
		img = imagery.P3ToSRGB(img)
	}

	out := filepath.Join(o.cfg.DestDir, outputName(rel, transparent))
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	o.logger.Info("Optimizing", zap.String("source", src), zap.String("output", out))

	if transparent {
		if err := imaging.Save(img, out); err != nil {
			return Result{}, fmt.Errorf("save %s: %w", out, err)
		}
		if o.compactor != nil {
			if err := o.compactor.Compact(ctx, out); err != nil {
				return Result{}, err
			}
		}
	} else if err := imaging.Save(img, out, imaging.JPEGQuality(settings.JPEGQuality)); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", out, err)
	}
	return Result{Source: src, Output: out, Transparent: transparent}, nil
}

// resizeToWidth scales img to width keeping its aspect ratio. Upscaling is
// refused; an equal width leaves img untouched.
func resizeToWidth(img image.Image, width int) (image.Image, error) {
	b := img.Bounds()
	switch {
	case width > b.Dx():
		return nil, fmt.Errorf("a width of %d is bigger than the source of %d", width, b.Dx())
	case width == b.Dx():
		return img, nil
	}
	aspect := float64(b.Dx()) / float64(b.Dy())
	height := int(math.Round(float64(width) / aspect))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// outputName maps a source path to its output path. The extension follows
// the encoded format: .png for transparent images and .jpeg otherwise.
func outputName(rel string, transparent bool) string {
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	if transparent {
		return stem + ".png"
	}
	return stem + ".jpeg"
}

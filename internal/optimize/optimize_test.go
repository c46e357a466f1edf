package optimize

import (
	"context"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, imaging.Save(img, path))
}

func filled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

type recordingCompactor struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingCompactor) Compact(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func TestRunOptimizesTree(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()

	translucent := filled(40, 20, color.NRGBA{R: 200, A: 255})
	translucent.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 100})
	writeImage(t, filepath.Join(src, "artwork", "crab.png"), translucent)

	// Only white pixels are translucent, so alpha can be dropped.
	whiteEdge := filled(40, 40, color.NRGBA{G: 180, A: 255})
	whiteEdge.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
	writeImage(t, filepath.Join(src, "stain.png"), whiteEdge)

	writeImage(t, filepath.Join(src, "wood.jpg"), filled(30, 10, color.NRGBA{R: 120, G: 80, B: 40, A: 255}))
	writeImage(t, filepath.Join(src, "types", "cloak", "frame-00000042.png"), filled(4, 4, color.NRGBA{A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("notes"), 0o600))

	settings := SettingsFile{Files: map[string]Settings{
		"artwork/crab.png": {Width: 20},
		"stain.png":        {Width: 40, JPEGQuality: 80},
		"wood.jpg":         {Width: 15, P3ToSRGB: true, JPEGQuality: 75},
	}}
	compactor := &recordingCompactor{}
	opt, err := New(Config{SourceDir: src, DestDir: dst, Parallelism: 2}, settings, compactor, zap.NewNop())
	require.NoError(t, err)

	results, err := opt.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 3)

	crab, err := imaging.Open(filepath.Join(dst, "artwork", "crab.png"))
	require.NoError(t, err)
	assert.Equal(t, 20, crab.Bounds().Dx())
	assert.Equal(t, 10, crab.Bounds().Dy())
	assert.Equal(t, []string{filepath.Join(dst, "artwork", "crab.png")}, compactor.paths)

	stain, err := imaging.Open(filepath.Join(dst, "stain.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, 40, stain.Bounds().Dx())

	wood, err := imaging.Open(filepath.Join(dst, "wood.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 15, 5), wood.Bounds())

	_, err = os.Stat(filepath.Join(dst, "types", "cloak", "frame-00000042.png"))
	assert.True(t, os.IsNotExist(err), "frames are left to colorize")
}

func TestFileErrors(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	translucent := filled(10, 10, color.NRGBA{R: 1, A: 1})
	writeImage(t, filepath.Join(src, "ghost.png"), translucent)
	writeImage(t, filepath.Join(src, "rock.png"), filled(10, 10, color.NRGBA{B: 90, A: 255}))

	tests := []struct {
		name     string
		rel      string
		settings Settings
		missing  bool
		errText  string
	}{
		{name: "MissingSettings", rel: "ghost.png", missing: true, errText: "no optimization settings"},
		{name: "QualityOnTransparent", rel: "ghost.png", settings: Settings{Width: 10, JPEGQuality: 80}, errText: "jpeg_quality to 0"},
		{name: "NoQualityOnOpaque", rel: "rock.png", settings: Settings{Width: 10}, errText: "jpeg_quality above 0"},
		{name: "Upscale", rel: "rock.png", settings: Settings{Width: 11, JPEGQuality: 80}, errText: "bigger than the source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			files := map[string]Settings{}
			if !tt.missing {
				files[tt.rel] = tt.settings
			}
			opt, err := New(Config{SourceDir: src, DestDir: t.TempDir()}, SettingsFile{Files: files}, nil, nil)
			require.NoError(t, err)
			_, err = opt.File(context.Background(), tt.rel)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`files:
  card_back.png: {width: 1240, p3_to_srgb: true, jpeg_quality: 80}
  artwork/crab.png: {width: 270}
`), 0o600))
	sf, err := LoadSettings(good)
	require.NoError(t, err)
	s, ok := sf.Lookup("card_back.png")
	require.True(t, ok)
	assert.Equal(t, Settings{Width: 1240, P3ToSRGB: true, JPEGQuality: 80}, s)
	_, ok = sf.Lookup(filepath.Join("artwork", "crab.png"))
	assert.True(t, ok)

	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("files:\n  a.png: {widht: 3}\n"), 0o600))
	_, err = LoadSettings(typo)
	assert.Error(t, err)

	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("files:\n  a.png: {width: 0}\n"), 0o600))
	_, err = LoadSettings(zero)
	assert.Error(t, err)
}

func TestNewPNGQuantDisabled(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewPNGQuant(""))
	assert.Nil(t, NewPNGQuant("cardshot-no-such-binary"))
}

// TestPNGQuantExitCodes swaps the package command hook, so it does not run
// in parallel.
func TestPNGQuantExitCodes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	orig := commandContext
	t.Cleanup(func() { commandContext = orig })

	run := func(code string) error {
		commandContext = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "exit "+code)
		}
		return (&PNGQuant{binary: "pngquant"}).Compact(context.Background(), "x.png")
	}
	assert.NoError(t, run("0"))
	assert.NoError(t, run("98"))
	assert.NoError(t, run("99"))
	assert.Error(t, run("1"))
}

package optimize

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

var (
	commandContext = exec.CommandContext
	lookPath       = exec.LookPath
)

// pngquant exit codes for outputs it chose not to write.
const (
	pngquantSkippedLarger = 98
	pngquantQualityTooLow = 99
)

// Compactor shrinks a written PNG in place.
type Compactor interface {
	Compact(ctx context.Context, path string) error
}

// PNGQuant runs the pngquant binary.
type PNGQuant struct {
	binary string
}

// NewPNGQuant resolves binary on PATH. It returns nil when binary is empty or
// cannot be found, which disables compaction.
func NewPNGQuant(binary string) *PNGQuant {
	if binary == "" {
		return nil
	}
	resolved, err := lookPath(binary)
	if err != nil {
		return nil
	}
	return &PNGQuant{binary: resolved}
}

// Compact overwrites path with a quantized copy, unless the result would be
// larger.
func (p *PNGQuant) Compact(ctx context.Context, path string) error {
	args := []string{path, "--force", "--strip", "--skip-if-larger", "--speed", "1", "--output", path}
	cmd := commandContext(ctx, p.binary, args...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case pngquantSkippedLarger, pngquantQualityTooLow:
			return nil
		}
	}
	return fmt.Errorf("pngquant %s: %w: %s", path, err, out)
}

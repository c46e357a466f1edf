package capture

import (
	"errors"
	"fmt"
)

// Fatal errors abort the whole run.
var (
	// ErrSourceUnreachable means the card page server did not answer the
	// start-up health check.
	ErrSourceUnreachable = errors.New("rendering source unreachable")
	// ErrMalformedIdentifier means a metadata or output name carried an
	// identifier that could not be parsed.
	ErrMalformedIdentifier = errors.New("malformed identifier")
	// ErrDimensionMismatch means the renderer produced a capture whose size
	// differs from the configured capture resolution.
	ErrDimensionMismatch = errors.New("capture dimensions do not match configuration")
	// ErrRendererLaunch means a renderer instance could not be started.
	ErrRendererLaunch = errors.New("renderer launch failed")
)

// ErrItemAborted is returned for an item that could not be captured even
// after its renderer was replaced the maximum number of times.
var ErrItemAborted = errors.New("item aborted")

// Stage names the step of a capture attempt that failed.
type Stage string

// Capture attempt stages.
const (
	StageNavigate   Stage = "navigate"
	StageLoad       Stage = "load"
	StageScreenshot Stage = "screenshot"
	StageEncode     Stage = "encode"
	StageWrite      Stage = "write"
)

// AttemptError is a retryable failure of one capture attempt.
type AttemptError struct {
	Stage Stage
	Err   error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must stop the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSourceUnreachable) ||
		errors.Is(err, ErrMalformedIdentifier) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrRendererLaunch)
}

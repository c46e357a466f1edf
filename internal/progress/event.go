package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageCaptureStart    Stage = "CAPTURE_START"
	StageCaptureDone     Stage = "CAPTURE_DONE"
	StageCaptureRetry    Stage = "CAPTURE_RETRY"
	StageRendererRestart Stage = "RENDERER_RESTART"
	StageItemAborted     Stage = "ITEM_ABORTED"
	StageOutputRemoved   Stage = "OUTPUT_REMOVED"
)

// Event captures a single milestone of a capture run.
type Event struct {
	// RunID identifies one invocation of the capture command.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Item is the decimal item identifier, empty for run-level stages.
	Item string
	// Worker is the index of the emitting worker, -1 for run-level stages.
	Worker  int
	Attempt int
	// Bytes is the encoded output size for CAPTURE_DONE.
	Bytes int64
	Dur   time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRendererRestart:
	case StageCaptureStart, StageCaptureDone, StageCaptureRetry, StageItemAborted, StageOutputRemoved:
		if e.Item == "" {
			return fmt.Errorf("%s requires an item", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// NewRunID returns a time-ordered run identifier.
func NewRunID() ([16]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return [16]byte{}, fmt.Errorf("generate uuid7: %w", err)
	}
	return UUIDToBytes(id), nil
}

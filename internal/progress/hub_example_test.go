package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleBytesSink struct {
	bytes int64
}

func (s *exampleBytesSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		s.bytes += evt.Bytes
	}
	return nil
}

func (s *exampleBytesSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit emits a completed capture and flushes it via Close.
func ExampleHub_Emit() {
	sink := &exampleBytesSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{
		RunID: UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001")),
		TS:    time.Unix(0, 0),
		Stage: StageCaptureDone,
		Item:  "7",
		Bytes: 512,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes written: %d\n", sink.bytes)
	// Output:
	// bytes written: 512
}

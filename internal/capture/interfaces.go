package capture

import (
	"context"

	"github.com/JakeFAU/cardshot/internal/item"
)

// Instance is one isolated page-rendering session with a single tab. An
// Instance is owned by exactly one worker and is never shared.
type Instance interface {
	// Navigate starts loading url and returns without waiting for the load.
	Navigate(ctx context.Context, url string) error
	// WaitLoaded blocks until the navigation to url has finished loading.
	WaitLoaded(ctx context.Context, url string) error
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) (Shot, error)
	// Close releases every resource held by the session. It is safe to call
	// after a crash and more than once.
	Close() error
}

// InstanceFactory launches fresh renderer sessions.
type InstanceFactory interface {
	New(ctx context.Context) (Instance, error)
}

// Encoder turns a raw capture into the bytes stored for an item.
type Encoder interface {
	Encode(png []byte) ([]byte, error)
	Extension() string
}

// OutputStore persists one image per item. Existence of an item's image is
// the only signal that the item has been captured.
type OutputStore interface {
	List(ctx context.Context) (item.Set, error)
	Put(ctx context.Context, id item.ID, data []byte) (string, error)
	Delete(ctx context.Context, id item.ID) error
}

// MetadataSource yields the identifiers that should have an output image.
type MetadataSource interface {
	ExpectedIDs(ctx context.Context) (item.Set, error)
}

// Queue hands out pending items. Pop never returns the same ID twice and
// reports false once the queue is drained.
type Queue interface {
	Pop() (item.ID, bool)
}

// Publisher pushes completion notices to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

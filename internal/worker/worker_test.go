package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
	"github.com/JakeFAU/cardshot/internal/item"
	"github.com/JakeFAU/cardshot/internal/progress"
	pubmemory "github.com/JakeFAU/cardshot/internal/publisher/memory"
	queuememory "github.com/JakeFAU/cardshot/internal/queue/memory"
	storememory "github.com/JakeFAU/cardshot/internal/storage/memory"
)

var testCapture = capture.Resolution{Width: 30, Height: 30}

var testSource = capture.Source{Host: "localhost", Port: 5000, Referrer: "test"}

func TestRunCapturesEveryItemWithLookahead(t *testing.T) {
	t.Parallel()

	ids := []item.ID{item.FromUint64(1), item.FromUint64(2), item.FromUint64(3)}
	inst := newFakeInstance(nil)
	h := newHarness(ids, &fakeFactory{})
	counter := progress.NewCounter(len(ids), zap.NewNop())
	h.deps.Counter = counter

	stats, err := New(h.cfg, h.deps, zap.NewNop()).Run(context.Background(), inst)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Captured)
	assert.Empty(t, stats.Aborted)
	assert.EqualValues(t, 3, counter.Captured())
	for _, id := range ids {
		data, ok := h.store.Get(id)
		require.True(t, ok, "missing output for %s", id)
		assert.Equal(t, "encoded", string(data))
	}
	// Each page is loaded once; the next one is requested while the current
	// capture is still being encoded.
	assert.Equal(t, []string{
		testSource.URL(ids[0]),
		testSource.URL(ids[1]),
		testSource.URL(ids[2]),
	}, inst.navigations())
	assert.True(t, inst.isClosed(), "worker closes its instance on return")
}

func TestRunRetriesFailedAttempt(t *testing.T) {
	t.Parallel()

	id := item.FromUint64(9)
	failures := 1
	inst := newFakeInstance(func(string) error {
		if failures > 0 {
			failures--
			return errors.New("blank page")
		}
		return nil
	})
	h := newHarness([]item.ID{id}, &fakeFactory{})
	h.cfg.MaxAttempts = 3

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), inst)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Captured)
	assert.Zero(t, stats.Restarts)
	assert.Equal(t, 1, h.emitter.count(progress.StageCaptureRetry))
	assert.Equal(t, 1, h.store.Writes(id))
	assert.Len(t, inst.navigations(), 2, "a failed attempt navigates again")
}

func TestRunRestartsStuckInstance(t *testing.T) {
	t.Parallel()

	id := item.FromUint64(4)
	stuck := newFakeInstance(func(string) error { return errors.New("hung") })
	fresh := newFakeInstance(nil)
	factory := &fakeFactory{instances: []*fakeInstance{fresh}}
	h := newHarness([]item.ID{id}, factory)
	h.cfg.MaxAttempts = 2
	h.cfg.MaxRestarts = 1
	counter := progress.NewCounter(1, nil)
	h.deps.Counter = counter

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), stuck)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Captured)
	assert.Equal(t, 1, stats.Restarts)
	assert.EqualValues(t, 1, counter.Captured(), "a recovered item is counted once")
	assert.Equal(t, 1, h.store.Writes(id))
	assert.Equal(t, 1, factory.launched())
	assert.True(t, stuck.isClosed())
	assert.True(t, fresh.isClosed())
	assert.Len(t, stuck.navigations(), 2)
	assert.Equal(t, 1, h.emitter.count(progress.StageRendererRestart))
	_, ok := h.store.Get(id)
	assert.True(t, ok)
}

func TestRunAbortsItemAfterMaxRestarts(t *testing.T) {
	t.Parallel()

	bad, good := item.FromUint64(1), item.FromUint64(2)
	failBad := func(url string) error {
		if url == testSource.URL(bad) {
			return errors.New("render error")
		}
		return nil
	}
	factory := &fakeFactory{instances: []*fakeInstance{newFakeInstance(failBad), newFakeInstance(failBad)}}
	h := newHarness([]item.ID{bad, good}, factory)
	h.cfg.MaxAttempts = 1
	h.cfg.MaxRestarts = 2

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), newFakeInstance(failBad))
	require.NoError(t, err)

	assert.Equal(t, []item.ID{bad}, stats.Aborted)
	assert.Equal(t, 1, stats.Captured)
	assert.Equal(t, 2, stats.Restarts)
	assert.Equal(t, 1, h.emitter.count(progress.StageItemAborted))
	_, ok := h.store.Get(bad)
	assert.False(t, ok)
	_, ok = h.store.Get(good)
	assert.True(t, ok)
}

func TestRunFailedReplacementLaunchIsFatal(t *testing.T) {
	t.Parallel()

	ids := []item.ID{item.FromUint64(1), item.FromUint64(2), item.FromUint64(3)}
	stuck := newFakeInstance(func(string) error { return errors.New("hung") })
	factory := &fakeFactory{}
	h := newHarness(ids, factory)
	h.cfg.MaxAttempts = 3
	h.cfg.MaxRestarts = 5

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), stuck)
	require.ErrorIs(t, err, capture.ErrRendererLaunch)
	assert.True(t, capture.IsFatal(err))
	assert.Equal(t, 1, factory.launched(), "no further launches after the first failure")
	assert.Empty(t, stats.Aborted)
	assert.Zero(t, stats.Captured)
	assert.Zero(t, h.emitter.count(progress.StageItemAborted))
}

func TestRunPreloadFailureDoesNotAffectOutput(t *testing.T) {
	t.Parallel()

	ids := []item.ID{item.FromUint64(1), item.FromUint64(2), item.FromUint64(3)}

	runWith := func(inst *fakeInstance, maxAttempts int) (*harness, Stats) {
		h := newHarness(ids, &fakeFactory{})
		h.deps.Encoder = echoEncoder{}
		h.cfg.MaxAttempts = maxAttempts
		stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), inst)
		require.NoError(t, err)
		return h, stats
	}

	baseline, _ := runWith(newFakeInstance(nil), 1)

	tests := []struct {
		name        string
		inst        func() *fakeInstance
		maxAttempts int
		wantNavs    []string
	}{
		{
			name: "preload navigation refused",
			inst: func() *fakeInstance {
				inst := newFakeInstance(nil)
				inst.navFail = failOnce(testSource.URL(ids[1]))
				return inst
			},
			maxAttempts: 1,
			wantNavs: []string{
				testSource.URL(ids[0]),
				testSource.URL(ids[1]),
				testSource.URL(ids[1]),
				testSource.URL(ids[2]),
			},
		},
		{
			name: "preloaded page fails to load",
			inst: func() *fakeInstance {
				inst := newFakeInstance(nil)
				inst.loadFail = failOnce(testSource.URL(ids[1]))
				return inst
			},
			maxAttempts: 2,
			wantNavs: []string{
				testSource.URL(ids[0]),
				testSource.URL(ids[1]),
				testSource.URL(ids[1]),
				testSource.URL(ids[2]),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inst := tt.inst()
			h, stats := runWith(inst, tt.maxAttempts)

			assert.Equal(t, 3, stats.Captured)
			assert.Empty(t, stats.Aborted)
			assert.Equal(t, tt.wantNavs, inst.navigations())
			for _, id := range ids {
				assert.Equal(t, 1, h.store.Writes(id), "item %s", id)
				got, ok := h.store.Get(id)
				require.True(t, ok)
				want, _ := baseline.store.Get(id)
				assert.Equal(t, want, got, "item %s", id)
				assert.Equal(t, "png:"+testSource.URL(id), string(got))
			}
		})
	}
}

func TestRunDimensionMismatchIsFatal(t *testing.T) {
	t.Parallel()

	inst := newFakeInstance(nil)
	inst.size = capture.Resolution{Width: 10, Height: 10}
	h := newHarness([]item.ID{item.FromUint64(1), item.FromUint64(2)}, &fakeFactory{})
	h.cfg.MaxAttempts = 3

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), inst)
	require.ErrorIs(t, err, capture.ErrDimensionMismatch)
	assert.Zero(t, stats.Captured)
	assert.Len(t, inst.navigations(), 1, "fatal errors are not retried")
}

func TestRunPublishesCompletionNotice(t *testing.T) {
	t.Parallel()

	id := item.FromUint64(77)
	h := newHarness([]item.ID{id}, &fakeFactory{})
	pub := pubmemory.New()
	h.deps.Publisher = pub
	h.deps.Hasher = fixedHasher("abc123")
	h.cfg.Topic = "captures"

	_, err := New(h.cfg, h.deps, nil).Run(context.Background(), newFakeInstance(nil))
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "captures", msgs[0].Topic)
	notice, ok := msgs[0].Payload.(Notice)
	require.True(t, ok)
	assert.Equal(t, "77", notice.Item)
	assert.Equal(t, "memory://77", notice.URI)
	assert.Equal(t, "abc123", notice.SHA256)
	assert.Equal(t, len("encoded"), notice.Bytes)
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	id := item.FromUint64(5)
	h := newHarness([]item.ID{id}, &fakeFactory{})
	pub := pubmemory.New()
	pub.FailWith(errors.New("topic gone"))
	h.deps.Publisher = pub
	h.cfg.Topic = "captures"

	stats, err := New(h.cfg, h.deps, nil).Run(context.Background(), newFakeInstance(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Captured)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness([]item.ID{item.FromUint64(1)}, &fakeFactory{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(h.cfg, h.deps, nil).Run(ctx, newFakeInstance(nil))
	require.ErrorIs(t, err, context.Canceled)
}

type harness struct {
	cfg     Config
	deps    Deps
	store   *storememory.OutputStore
	emitter *recordingEmitter
}

func newHarness(ids []item.ID, factory *fakeFactory) *harness {
	store := storememory.NewOutputStore()
	emitter := &recordingEmitter{}
	return &harness{
		cfg: Config{
			ID:          0,
			RunID:       [16]byte{1},
			Source:      testSource,
			Capture:     testCapture,
			MaxAttempts: 1,
		},
		deps: Deps{
			Queue:   queuememory.NewQueue(ids),
			Factory: factory,
			Encoder: fakeEncoder{},
			Store:   store,
			Emitter: emitter,
			Clock:   fixedClock{},
		},
		store:   store,
		emitter: emitter,
	}
}

// fakeInstance loads whatever it was last told to navigate to. fail is
// consulted on every screenshot with the loaded URL; navFail and loadFail,
// when set, can refuse a navigation or a load. Screenshots embed the loaded
// URL so tests can tell which page was captured.
type fakeInstance struct {
	mu       sync.Mutex
	navs     []string
	current  string
	closed   bool
	size     capture.Resolution
	fail     func(url string) error
	navFail  func(url string) error
	loadFail func(url string) error
}

func newFakeInstance(fail func(string) error) *fakeInstance {
	return &fakeInstance{size: testCapture, fail: fail}
}

func (f *fakeInstance) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navs = append(f.navs, url)
	if f.navFail != nil {
		if err := f.navFail(url); err != nil {
			return err
		}
	}
	f.current = url
	return nil
}

func (f *fakeInstance) WaitLoaded(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url != f.current {
		return errors.New("not navigating to " + url)
	}
	if f.loadFail != nil {
		return f.loadFail(url)
	}
	return nil
}

func (f *fakeInstance) Screenshot(context.Context) (capture.Shot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(f.current); err != nil {
			return capture.Shot{}, err
		}
	}
	return capture.Shot{PNG: []byte("png:" + f.current), Width: f.size.Width, Height: f.size.Height}, nil
}

func (f *fakeInstance) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeInstance) navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navs...)
}

func (f *fakeInstance) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu        sync.Mutex
	instances []*fakeInstance
	calls     int
}

func (f *fakeFactory) New(context.Context) (capture.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.instances) == 0 {
		return nil, errors.New("no more instances")
	}
	inst := f.instances[0]
	f.instances = f.instances[1:]
	return inst, nil
}

func (f *fakeFactory) launched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(raw []byte) ([]byte, error) {
	if !strings.HasPrefix(string(raw), "png") {
		return nil, errors.New("not a png")
	}
	return []byte("encoded"), nil
}

func (fakeEncoder) Extension() string { return "jpeg" }

// echoEncoder stores the screenshot unchanged.
type echoEncoder struct{}

func (echoEncoder) Encode(raw []byte) ([]byte, error) {
	return append([]byte(nil), raw...), nil
}

func (echoEncoder) Extension() string { return "png" }

// failOnce returns a func that fails the first call for target only.
func failOnce(target string) func(string) error {
	var mu sync.Mutex
	done := false
	return func(url string) error {
		mu.Lock()
		defer mu.Unlock()
		if url != target || done {
			return nil
		}
		done = true
		return errors.New("refused " + url)
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) count(stage progress.Stage) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Stage == stage {
			n++
		}
	}
	return n
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

type fixedHasher string

func (h fixedHasher) Hash([]byte) string { return string(h) }

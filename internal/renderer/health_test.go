package renderer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cardshot/internal/capture"
)

type probeInstance struct {
	mu       sync.Mutex
	visited  []string
	failures map[int]bool
	calls    int
}

func (p *probeInstance) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	return nil
}

func (p *probeInstance) WaitLoaded(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls
	p.calls++
	if p.failures[n] {
		return errors.New("net::ERR_CONNECTION_REFUSED")
	}
	return nil
}

func (p *probeInstance) Screenshot(context.Context) (capture.Shot, error) {
	return capture.Shot{}, nil
}

func (p *probeInstance) Close() error { return nil }

var testSource = capture.Source{Host: "localhost", Port: 5000, Referrer: "generate_images"}

func TestHealthCheckVisitsEveryProbe(t *testing.T) {
	t.Parallel()

	inst := &probeInstance{failures: map[int]bool{0: true}}
	err := HealthCheck(context.Background(), inst, testSource, 3, 0, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://localhost:5000/card?referrer=generate_images&tokenID=0",
		"http://localhost:5000/card?referrer=generate_images&tokenID=1",
		"http://localhost:5000/card?referrer=generate_images&tokenID=2",
	}, inst.visited)
}

func TestHealthCheckAllFail(t *testing.T) {
	t.Parallel()

	inst := &probeInstance{failures: map[int]bool{0: true, 1: true, 2: true}}
	err := HealthCheck(context.Background(), inst, testSource, 3, 0, nil)
	require.ErrorIs(t, err, capture.ErrSourceUnreachable)
	assert.True(t, capture.IsFatal(err))
	assert.Len(t, inst.visited, 3)
}

func TestHealthCheckCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inst := &probeInstance{failures: map[int]bool{0: true}}
	err := HealthCheck(ctx, inst, testSource, 3, 0, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, inst.visited, 1)
}

package system_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cardshot/internal/clock/system"
	"github.com/JakeFAU/cardshot/internal/worker"
)

var _ worker.Clock = system.New()

func TestEventTimestampsAreUTC(t *testing.T) {
	t.Parallel()

	clk := system.New()
	ts := clk.Now()
	assert.Equal(t, time.UTC, ts.Location())
	assert.WithinDuration(t, time.Now(), ts, time.Second)

	// Notices and ledger rows carry the timestamp as RFC 3339 with a Z suffix.
	raw, err := json.Marshal(worker.Notice{CapturedAt: ts})
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `Z"`), string(raw))
}

func TestCaptureDurationsAreNonNegative(t *testing.T) {
	t.Parallel()

	clk := system.New()
	start := clk.Now()
	for range 100 {
		assert.GreaterOrEqual(t, clk.Now().Sub(start), time.Duration(0))
	}
}

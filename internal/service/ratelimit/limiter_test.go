package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesCapacity(t *testing.T) {
	l := New()
	base := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return base }

	assert.True(t, l.Allow("binance", 2, 1))
	assert.True(t, l.Allow("binance", 2, 1))
	assert.False(t, l.Allow("binance", 2, 1))
	assert.True(t, l.Allow("bybit", 2, 1), "keys have independent buckets")

	base = base.Add(time.Second)
	assert.True(t, l.Allow("binance", 2, 1))
}

func TestWaitHonoursContext(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "k", 1, 0.001)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 50))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 50))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

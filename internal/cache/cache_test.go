package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewMemory(30 * time.Second).WithClock(clock.Now)

	value := model.Analytics{TokenAddress: "0xabc", PercentChange: 20, Volume: 1600}
	require.NoError(t, c.Put(ctx, "0xABC", 24*time.Hour, value))

	got, ok, err := c.Get(ctx, "0xabc", 24*time.Hour)
	require.NoError(t, err)
	require.True(t, ok, "key is case-normalized")
	assert.Equal(t, value, got)

	_, ok, _ = c.Get(ctx, "0xabc", time.Hour)
	assert.False(t, ok, "windows are cached separately")

	clock.Advance(29 * time.Second)
	_, ok, _ = c.Get(ctx, "0xabc", 24*time.Hour)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "0xabc", 24*time.Hour)
	assert.False(t, ok, "entry expires at ttl")
}

func TestMemoryInvalidateDropsAllWindows(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	require.NoError(t, c.Put(ctx, "0xabc", time.Hour, model.Analytics{Volume: 1}))
	require.NoError(t, c.Put(ctx, "0xabc", 24*time.Hour, model.Analytics{Volume: 2}))
	require.NoError(t, c.Put(ctx, "0xdef", time.Hour, model.Analytics{Volume: 3}))

	require.NoError(t, c.Invalidate(ctx, "0xABC"))

	_, ok, _ := c.Get(ctx, "0xabc", time.Hour)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "0xabc", 24*time.Hour)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "0xdef", time.Hour)
	assert.True(t, ok, "other tokens are untouched")
}

func TestMemoryLastWriteWins(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Put(ctx, "0xabc", time.Hour, model.Analytics{TradeCount: i})
		}(i)
	}
	wg.Wait()
	require.NoError(t, c.Put(ctx, "0xabc", time.Hour, model.Analytics{TradeCount: 99}))

	got, ok, _ := c.Get(ctx, "0xabc", time.Hour)
	require.True(t, ok)
	assert.Equal(t, 99, got.TradeCount)
}

func TestMemoryPrunesExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewMemory(time.Second).WithClock(clock.Now)

	require.NoError(t, c.Put(ctx, "0xold", time.Hour, model.Analytics{}))
	clock.Advance(2 * time.Second)
	require.NoError(t, c.Put(ctx, "0xnew", time.Hour, model.Analytics{}))

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Len(t, c.entries, 1)
	assert.Contains(t, c.entries, "0xnew")
}

func TestMemorySweepsOncePerTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := NewMemory(10 * time.Second).WithClock(clock.Now)

	require.NoError(t, c.Put(ctx, "0xa", time.Hour, model.Analytics{}))
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Put(ctx, "0xb", time.Hour, model.Analytics{}))
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Put(ctx, "0xc", time.Hour, model.Analytics{}))

	c.mu.RLock()
	assert.NotContains(t, c.entries, "0xa", "sweep due after one TTL")
	assert.Contains(t, c.entries, "0xb")
	c.mu.RUnlock()

	// 0xb is now expired but the next sweep is not due yet.
	clock.Advance(6 * time.Second)
	require.NoError(t, c.Put(ctx, "0xd", time.Hour, model.Analytics{}))
	require.NoError(t, c.Put(ctx, "0xb", 2*time.Hour, model.Analytics{}))

	c.mu.RLock()
	assert.Len(t, c.entries, 3)
	assert.Equal(t, []time.Duration{2 * time.Hour}, windowsOf(c.entries["0xb"]), "written token drops its expired windows")
	c.mu.RUnlock()

	clock.Advance(4 * time.Second)
	require.NoError(t, c.Put(ctx, "0xe", time.Hour, model.Analytics{}))

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.NotContains(t, c.entries, "0xc")
	assert.Contains(t, c.entries, "0xb")
	assert.Contains(t, c.entries, "0xd")
	assert.Contains(t, c.entries, "0xe")
}

func windowsOf(windows map[time.Duration]Entry) []time.Duration {
	out := make([]time.Duration, 0, len(windows))
	for window := range windows {
		out = append(out, window)
	}
	return out
}

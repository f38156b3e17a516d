package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

type countingComputer struct {
	calls  atomic.Int32
	source model.AnalyticsSource
}

func (c *countingComputer) Compute(_ context.Context, token common.Address, window time.Duration) (model.Analytics, error) {
	n := c.calls.Add(1)
	source := c.source
	if source == "" {
		source = model.SourceTradeReconstruction
	}
	return model.Analytics{
		TokenAddress:  token.Hex(),
		WindowSeconds: int64(window / time.Second),
		Source:        source,
		TradeCount:    int(n),
	}, nil
}

func TestServiceCachesWithinTTL(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{}
	svc := NewService(computer, cache.NewMemory(time.Minute), 24*time.Hour, nil, nil)

	first, err := svc.GetPriceAnalytics(ctx, songToken, 0, GetOptions{})
	require.NoError(t, err)
	second, err := svc.GetPriceAnalytics(ctx, songToken, 24*time.Hour, GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), computer.calls.Load())
	assert.Equal(t, int64(86400), first.WindowSeconds, "zero window uses the default")
}

func TestServiceInvalidateForcesFetch(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{}
	svc := NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)

	_, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, songToken))

	result, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TradeCount)
	assert.Equal(t, int32(2), computer.calls.Load())
}

func TestServiceBypassLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{}
	svc := NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)

	cached, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)

	live, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{Bypass: true})
	require.NoError(t, err)
	assert.Equal(t, 2, live.TradeCount)

	again, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, cached, again, "bypass result was not written")
}

func TestServiceRefreshWritesCache(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{}
	svc := NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)

	_, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)
	refreshed, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{Refresh: true})
	require.NoError(t, err)

	again, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, refreshed, again)
	assert.Equal(t, int32(2), computer.calls.Load())
}

func TestServiceDoesNotCacheUnavailable(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{source: model.SourceUnavailable}
	svc := NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), computer.calls.Load())
}

func TestServiceRecordsCacheMetrics(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	svc := NewService(&countingComputer{}, cache.NewMemory(time.Minute), time.Hour, m, nil)

	_, _ = svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})
	_, _ = svc.GetPriceAnalytics(ctx, songToken, time.Hour, GetOptions{})

	count, err := testutil.GatherAndCount(registry, "songscope_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one hit series and one miss series")
}

func TestServiceConcurrentTokens(t *testing.T) {
	ctx := context.Background()
	computer := &countingComputer{}
	svc := NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)

	tokens := []common.Address{songToken, paymentToken, alice, bob}
	var wg sync.WaitGroup
	for _, token := range tokens {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(token common.Address) {
				defer wg.Done()
				_, err := svc.GetPriceAnalytics(ctx, token, time.Hour, GetOptions{})
				assert.NoError(t, err)
			}(token)
		}
	}
	wg.Wait()

	for _, token := range tokens {
		result, err := svc.GetPriceAnalytics(ctx, token, time.Hour, GetOptions{})
		require.NoError(t, err)
		assert.Equal(t, token.Hex(), result.TokenAddress)
	}
}

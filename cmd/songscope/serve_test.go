package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/notify"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage/memory"
)

type countingComputer struct {
	calls atomic.Int32
}

func (c *countingComputer) Compute(_ context.Context, token common.Address, window time.Duration) (model.Analytics, error) {
	return model.Analytics{
		TokenAddress: token.Hex(),
		Source:       model.SourceTradeReconstruction,
		TradeCount:   int(c.calls.Add(1)),
	}, nil
}

func TestLocalPublisherInvalidatesAnalytics(t *testing.T) {
	ctx := context.Background()
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	computer := &countingComputer{}
	svc := analytics.NewService(computer, cache.NewMemory(time.Minute), time.Hour, nil, nil)
	publisher := notify.NewLocal(invalidateOnTrade(svc, zap.NewNop()))

	_, err := svc.GetPriceAnalytics(ctx, token, time.Hour, analytics.GetOptions{})
	require.NoError(t, err)
	_, err = svc.GetPriceAnalytics(ctx, token, time.Hour, analytics.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(1), computer.calls.Load())

	require.NoError(t, publisher.PublishTrade(ctx, model.TradeNotification{TokenAddress: token.Hex(), TxHash: "0x01"}))

	got, err := svc.GetPriceAnalytics(ctx, token, time.Hour, analytics.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, got.TradeCount)
	assert.Equal(t, int32(2), computer.calls.Load())
}

func TestReadinessChecks(t *testing.T) {
	assert.Empty(t, readinessChecks(memory.NewTradeStore(), cache.NewMemory(time.Minute)))

	redisCache := cache.NewRedis("127.0.0.1:0", "", 0, time.Minute)
	t.Cleanup(func() { _ = redisCache.Close() })
	checks := readinessChecks(memory.NewTradeStore(), redisCache)
	require.Len(t, checks, 1)
	assert.Equal(t, "cache", checks[0].Name)
}

package tradeindex

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// RetryPolicy bounds caller-side re-invocation of Index.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// IndexWithRetry re-invokes Index with exponential backoff. A receipt that is
// not yet available is retried; a receipt without the trade is not.
func (ix *Indexer) IndexWithRetry(ctx context.Context, policy RetryPolicy, txHash common.Hash, token common.Address, entityID *string) (model.TradeRecord, error) {
	var record model.TradeRecord
	err := withRetry(ctx, policy.MaxRetries, policy.BaseDelay, func(ctx context.Context) error {
		var err error
		record, err = ix.Index(ctx, txHash, token, entityID)
		return err
	})
	return record, err
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

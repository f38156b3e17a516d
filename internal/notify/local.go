package notify

import (
	"context"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// Local delivers notifications to in-process handlers without a broker.
type Local struct {
	handlers []Handler
}

var _ Publisher = (*Local)(nil)

// NewLocal returns a publisher that calls every handler synchronously.
func NewLocal(handlers ...Handler) *Local {
	return &Local{handlers: handlers}
}

// PublishTrade hands notification to each handler in order.
func (l *Local) PublishTrade(ctx context.Context, notification model.TradeNotification) error {
	for _, handler := range l.handlers {
		handler(ctx, notification)
	}
	return nil
}

func (l *Local) Close() error { return nil }

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// SubjectPrefix prefixes every trade notification subject.
const SubjectPrefix = "songscope.trades"

// Subject returns the subject for a token's trade notifications.
func Subject(tokenAddress string) string {
	return SubjectPrefix + "." + strings.ToLower(tokenAddress)
}

// Publisher announces newly indexed trades.
type Publisher interface {
	PublishTrade(ctx context.Context, notification model.TradeNotification) error
	Close() error
}

// Handler receives decoded trade notifications.
type Handler func(ctx context.Context, notification model.TradeNotification)

// NATS publishes and subscribes to trade notifications over core NATS.
type NATS struct {
	nc      *nats.Conn
	logger  *zap.Logger
	metrics *metrics.Metrics
}

var _ Publisher = (*NATS)(nil)

// Connect dials natsURL. m may be nil.
func Connect(natsURL, name string, m *metrics.Metrics, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return &NATS{nc: nc, logger: logger, metrics: m}, nil
}

// PublishTrade publishes notification on the token's subject.
func (n *NATS) PublishTrade(_ context.Context, notification model.TradeNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal trade notification: %w", err)
	}
	subject := Subject(notification.TokenAddress)
	err = n.nc.Publish(subject, data)
	n.metrics.RecordNotification("published", err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	n.logger.Debug("published trade notification", zap.String("subject", subject), zap.String("tx_hash", notification.TxHash))
	return nil
}

// Subscribe delivers every trade notification to handler until ctx is done.
func (n *NATS) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := n.nc.Subscribe(SubjectPrefix+".*", func(msg *nats.Msg) {
		n.handleMessage(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.*: %w", SubjectPrefix, err)
	}
	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			n.logger.Warn("nats unsubscribe failed", zap.Error(err))
		}
	}()
	return nil
}

func (n *NATS) handleMessage(ctx context.Context, msg *nats.Msg, handler Handler) {
	notification, err := Decode(msg.Data)
	n.metrics.RecordNotification("received", err)
	if err != nil {
		n.logger.Warn("drop malformed trade notification", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	handler(ctx, notification)
}

// Flush waits until published messages reach the server.
func (n *NATS) Flush() error {
	return n.nc.Flush()
}

// Close drains the connection.
func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
		return err
	}
	return nil
}

// Decode parses a trade notification payload.
func Decode(data []byte) (model.TradeNotification, error) {
	var notification model.TradeNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		return model.TradeNotification{}, fmt.Errorf("decode trade notification: %w", err)
	}
	if notification.TokenAddress == "" {
		return model.TradeNotification{}, fmt.Errorf("decode trade notification: missing token_address")
	}
	return notification, nil
}

package notify

import (
	"context"
	"sync"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// MockPublisher records published notifications for tests.
type MockPublisher struct {
	mu        sync.RWMutex
	published []model.TradeNotification
	err       error
	closed    bool
}

var _ Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates an empty mock.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{published: make([]model.TradeNotification, 0)}
}

// SetError makes subsequent publishes fail with err.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// PublishTrade records notification unless an error is configured.
func (m *MockPublisher) PublishTrade(_ context.Context, notification model.TradeNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, notification)
	return nil
}

// Close marks the mock closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Published returns a copy of the recorded notifications.
func (m *MockPublisher) Published() []model.TradeNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TradeNotification, len(m.published))
	copy(out, m.published)
	return out
}

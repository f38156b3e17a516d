package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// Computer produces uncached analytics.
type Computer interface {
	Compute(ctx context.Context, token common.Address, window time.Duration) (model.Analytics, error)
}

// GetOptions controls cache use for a single call.
type GetOptions struct {
	// Bypass skips both the cache read and the cache write.
	Bypass bool
	// Refresh skips the cache read but stores the fresh result.
	Refresh bool
}

// Service serves price analytics through the result cache.
type Service struct {
	computer      Computer
	cache         cache.Cache
	metrics       *metrics.Metrics
	logger        *zap.Logger
	defaultWindow time.Duration
	triggers      *RefreshTrigger
}

// NewService builds a Service. m may be nil.
func NewService(computer Computer, resultCache cache.Cache, defaultWindow time.Duration, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultCache == nil {
		resultCache = cache.NewMemory(cache.DefaultTTL)
	}
	if defaultWindow <= 0 {
		defaultWindow = 24 * time.Hour
	}
	return &Service{
		computer:      computer,
		cache:         resultCache,
		metrics:       m,
		logger:        logger,
		defaultWindow: defaultWindow,
		triggers:      NewRefreshTrigger(),
	}
}

// DefaultWindow is the window used when callers pass zero.
func (s *Service) DefaultWindow() time.Duration {
	return s.defaultWindow
}

// Triggers returns the per-token refresh counters shared by sessions.
func (s *Service) Triggers() *RefreshTrigger {
	return s.triggers
}

// GetPriceAnalytics returns analytics for token over window, from cache when fresh.
func (s *Service) GetPriceAnalytics(ctx context.Context, token common.Address, window time.Duration, opts GetOptions) (model.Analytics, error) {
	if window <= 0 {
		window = s.defaultWindow
	}
	key := chain.AddressKey(token)

	switch {
	case opts.Bypass:
		s.metrics.RecordCacheLookup("bypass")
	case opts.Refresh:
		s.metrics.RecordCacheLookup("refresh")
	default:
		cached, ok, err := s.cache.Get(ctx, key, window)
		if err != nil {
			s.logger.Warn("cache read failed", zap.String("token", key), zap.Error(err))
		}
		if ok {
			s.metrics.RecordCacheLookup("hit")
			return cached, nil
		}
		s.metrics.RecordCacheLookup("miss")
	}

	start := time.Now()
	result, err := s.computer.Compute(ctx, token, window)
	if err != nil {
		return model.Analytics{}, err
	}
	s.metrics.RecordAnalytics(string(result.Source), time.Since(start).Seconds())

	// Unavailable results are not cached so the next call retries the chain.
	if !opts.Bypass && result.Source != model.SourceUnavailable {
		if err := s.cache.Put(ctx, key, window, result); err != nil {
			s.logger.Warn("cache write failed", zap.String("token", key), zap.Error(err))
		}
	}
	return result, nil
}

// Invalidate drops cached analytics for token and bumps its refresh trigger.
func (s *Service) Invalidate(ctx context.Context, token common.Address) error {
	s.triggers.Bump(token)
	return s.cache.Invalidate(ctx, chain.AddressKey(token))
}

// RefreshTrigger counts refresh requests per token. A reader that remembers
// the last value it saw performs exactly one fresh fetch per bump.
type RefreshTrigger struct {
	mu     sync.Mutex
	counts map[common.Address]uint64
}

// NewRefreshTrigger creates an empty trigger set.
func NewRefreshTrigger() *RefreshTrigger {
	return &RefreshTrigger{counts: make(map[common.Address]uint64)}
}

// Bump requests one fresh fetch for token and returns the new count.
func (t *RefreshTrigger) Bump(token common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[token]++
	return t.counts[token]
}

// Value returns the current count for token.
func (t *RefreshTrigger) Value(token common.Address) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[token]
}

package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// ErrStale is returned by Session.Load when the observed token changed while
// the fetch was in flight. The result is discarded.
var ErrStale = errors.New("analytics result is stale")

// ErrNoToken is returned by Session.Load before a token is set.
var ErrNoToken = errors.New("session has no token")

// Session tracks the analytics of one observed token for a long-lived consumer.
// Each token change starts a new generation; results from older generations are dropped.
type Session struct {
	service *Service
	window  time.Duration
	bypass  bool

	mu         sync.Mutex
	token      common.Address
	hasToken   bool
	generation uint64
	seenBump   uint64
	current    *model.Analytics
}

// NewSession creates a session over service. bypass makes every load skip the shared cache.
func NewSession(service *Service, window time.Duration, bypass bool) *Session {
	return &Session{service: service, window: window, bypass: bypass}
}

// SetToken switches the observed token and returns the new generation.
func (s *Session) SetToken(token common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.hasToken = true
	s.generation++
	s.seenBump = s.service.Triggers().Value(token)
	s.current = nil
	return s.generation
}

// Refresh asks for exactly one fresh fetch of the current token on the next Load.
func (s *Session) Refresh() {
	s.mu.Lock()
	token, ok := s.token, s.hasToken
	s.mu.Unlock()
	if ok {
		s.service.Triggers().Bump(token)
	}
}

// Load fetches analytics for the current token and stores them unless the token changed meanwhile.
func (s *Session) Load(ctx context.Context) (model.Analytics, error) {
	s.mu.Lock()
	if !s.hasToken {
		s.mu.Unlock()
		return model.Analytics{}, ErrNoToken
	}
	token := s.token
	generation := s.generation
	bump := s.service.Triggers().Value(token)
	opts := GetOptions{Bypass: s.bypass, Refresh: bump > s.seenBump}
	s.mu.Unlock()

	result, err := s.service.GetPriceAnalytics(ctx, token, s.window, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return model.Analytics{}, ErrStale
	}
	if err != nil {
		return model.Analytics{}, err
	}
	if bump > s.seenBump {
		s.seenBump = bump
	}
	s.current = &result
	return result, nil
}

// Current returns the last applied result.
func (s *Session) Current() (model.Analytics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Analytics{}, false
	}
	return *s.current, true
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// AnalyticsService serves price analytics.
type AnalyticsService interface {
	GetPriceAnalytics(ctx context.Context, token common.Address, window time.Duration, opts analytics.GetOptions) (model.Analytics, error)
	Invalidate(ctx context.Context, token common.Address) error
	DefaultWindow() time.Duration
}

// TradeIndexer indexes and lists canonical trades.
type TradeIndexer interface {
	Index(ctx context.Context, txHash common.Hash, token common.Address, entityID *string) (model.TradeRecord, error)
	ListTrades(ctx context.Context, token common.Address, limit int) ([]model.TradeRecord, error)
}

// Check reports whether a named backend is reachable.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Options configures the HTTP server.
type Options struct {
	Addr       string
	RPCTimeout time.Duration
	// Gatherer backs GET /metrics. The endpoint is disabled when nil.
	Gatherer prometheus.Gatherer
	// Readiness checks back GET /ready.
	Readiness []Check
}

// Server is the songscope HTTP API.
type Server struct {
	opts      Options
	analytics AnalyticsService
	indexer   TradeIndexer
	metrics   *metrics.Metrics
	logger    *zap.Logger
	server    *http.Server
}

// New creates a server. indexer and m may be nil.
func New(opts Options, svc AnalyticsService, indexer TradeIndexer, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:      opts,
		analytics: svc,
		indexer:   indexer,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/tokens/{address}/analytics", s.instrument("analytics", handleGetAnalytics(s.analytics, s.opts.RPCTimeout, s.logger)))
	mux.Handle("POST /api/v1/tokens/{address}/invalidate", s.instrument("invalidate", handleInvalidate(s.analytics, s.logger)))

	if s.indexer != nil {
		mux.Handle("GET /api/v1/tokens/{address}/trades", s.instrument("list_trades", handleListTrades(s.indexer, s.logger)))
		mux.Handle("POST /api/v1/trades", s.instrument("index_trade", handleIndexTrade(s.indexer, s.opts.RPCTimeout, s.logger)))
	} else {
		s.logger.Warn("trade indexer not configured, trade endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("GET /ready", handleReady(s.opts.Readiness, s.logger))

	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.opts.RPCTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(name, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

package analytics

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/curve"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/fetcher"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// TransferSource is the log fetcher surface the strategy needs.
type TransferSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FetchTransfersInvolving(ctx context.Context, contract, party common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error)
	BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]time.Time, error)
}

// StrategyConfig holds the contract addresses and tuning for price analytics.
type StrategyConfig struct {
	BondingCurve    common.Address
	PaymentToken    common.Address
	FeeAddress      common.Address
	TokenDecimals   uint8
	PaymentDecimals uint8
	BlockTime       time.Duration
	MaxPoints       int
	FlatLinePoints  int
	// SkipHistoricalRead forces trade reconstruction so volume is always observed.
	SkipHistoricalRead bool
}

// Strategy computes analytics by walking HistoricalRead, TradeReconstruction,
// FlatLineFallback and Empty in that order.
type Strategy struct {
	cfg    StrategyConfig
	caller curve.Caller
	source TransferSource
	logger *zap.Logger
	now    func() time.Time
}

// NewStrategy builds a Strategy.
func NewStrategy(cfg StrategyConfig, caller curve.Caller, source TransferSource, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 2 * time.Second
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	if cfg.FlatLinePoints <= 0 {
		cfg.FlatLinePoints = DefaultMaxPoints
	}
	return &Strategy{
		cfg:    cfg,
		caller: caller,
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type state int

const (
	stateHistoricalRead state = iota
	stateTradeReconstruction
	stateFlatLine
	stateEmpty
	stateDone
)

func (s state) String() string {
	switch s {
	case stateHistoricalRead:
		return "historical_read"
	case stateTradeReconstruction:
		return "trade_reconstruction"
	case stateFlatLine:
		return "flat_line"
	case stateEmpty:
		return "empty"
	default:
		return "done"
	}
}

// run carries what one Compute call has learned so far.
type run struct {
	token  common.Address
	window time.Duration
	now    time.Time

	latest      uint64
	latestKnown bool

	currentPrice *float64
	priceTried   bool

	result model.Analytics
}

// Compute produces analytics for token over window. Chain failures degrade into
// the result; only context cancellation is returned as an error.
func (s *Strategy) Compute(ctx context.Context, token common.Address, window time.Duration) (model.Analytics, error) {
	r := &run{token: token, window: window, now: s.now()}

	st := stateHistoricalRead
	if s.cfg.SkipHistoricalRead {
		st = stateTradeReconstruction
	}
	for st != stateDone {
		if err := ctx.Err(); err != nil {
			return model.Analytics{}, err
		}
		s.logger.Debug("strategy state", zap.String("token", token.Hex()), zap.Stringer("state", st))

		switch st {
		case stateHistoricalRead:
			st = s.historicalRead(ctx, r)
		case stateTradeReconstruction:
			st = s.tradeReconstruction(ctx, r)
		case stateFlatLine:
			st = s.flatLine(r)
		case stateEmpty:
			st = s.empty(r)
		default:
			return model.Analytics{}, fmt.Errorf("unknown strategy state %d", st)
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Analytics{}, err
	}

	r.result.TokenAddress = chain.AddressKey(token)
	r.result.WindowSeconds = int64(window / time.Second)
	r.result.CurrentPrice = r.currentPrice
	r.result.ComputedAt = r.now
	if r.result.Series == nil {
		r.result.Series = []model.PricePoint{}
	}
	return r.result, nil
}

func (s *Strategy) historicalRead(ctx context.Context, r *run) state {
	latest, err := s.latestBlock(ctx, r)
	if err != nil {
		s.logger.Debug("historical read: latest block", zap.Error(err))
		return stateTradeReconstruction
	}
	current, err := s.priceAt(ctx, r.token, new(big.Int).SetUint64(latest))
	if err != nil {
		s.logger.Debug("historical read: current price", zap.String("token", r.token.Hex()), zap.Error(err))
		return stateTradeReconstruction
	}
	r.priceTried = true
	if current > 0 {
		r.currentPrice = &current
	}

	offset := s.windowBlocks(r.window)
	if offset > latest {
		return stateTradeReconstruction
	}
	historical, err := s.priceAt(ctx, r.token, new(big.Int).SetUint64(latest-offset))
	if err != nil {
		s.logger.Debug("historical read: past price", zap.String("token", r.token.Hex()), zap.Error(err))
		return stateTradeReconstruction
	}
	if historical <= 0 {
		return stateTradeReconstruction
	}

	r.result = model.Analytics{
		Source:        model.SourceHistoricalRead,
		PercentChange: percentChange(historical, current),
		Volume:        0,
		Series: []model.PricePoint{
			{Timestamp: r.now.Add(-r.window), Price: historical},
			{Timestamp: r.now, Price: current},
		},
	}
	return stateDone
}

func (s *Strategy) tradeReconstruction(ctx context.Context, r *run) state {
	latest, err := s.latestBlock(ctx, r)
	if err != nil {
		return s.unavailable(r, err)
	}
	var fromBlock uint64
	if offset := s.windowBlocks(r.window); offset < latest {
		fromBlock = latest - offset
	}

	tokenTransfers, err := s.source.FetchTransfersInvolving(ctx, r.token, s.cfg.BondingCurve, fromBlock, latest)
	if err != nil {
		return s.unavailable(r, err)
	}
	paymentTransfers, err := s.source.FetchTransfersInvolving(ctx, s.cfg.PaymentToken, s.cfg.BondingCurve, fromBlock, latest)
	if err != nil {
		return s.unavailable(r, err)
	}
	timestamps, err := s.source.BlockTimestamps(ctx, fetcher.UniqueBlocks(tokenTransfers))
	if err != nil {
		return s.unavailable(r, err)
	}

	correlated := Correlate(CorrelateInput{
		TokenTransfers:   tokenTransfers,
		PaymentTransfers: paymentTransfers,
		BondingCurve:     s.cfg.BondingCurve,
		FeeAddress:       s.cfg.FeeAddress,
		TokenDecimals:    s.cfg.TokenDecimals,
		PaymentDecimals:  s.cfg.PaymentDecimals,
		Timestamps:       timestamps,
	})
	windowStart := r.now.Add(-r.window)
	trades := correlated[:0]
	for _, trade := range correlated {
		if trade.Timestamp.Before(windowStart) {
			continue
		}
		trades = append(trades, trade)
	}

	s.ensureCurrentPrice(ctx, r)
	if len(trades) == 0 {
		if r.currentPrice != nil {
			return stateFlatLine
		}
		return stateEmpty
	}

	var current *model.PricePoint
	if r.currentPrice != nil {
		current = &model.PricePoint{Timestamp: r.now, Price: *r.currentPrice}
	}
	series := BuildSeries(trades, current, s.cfg.MaxPoints)
	r.result = model.Analytics{
		Source:        model.SourceTradeReconstruction,
		PercentChange: series.PercentChange,
		Volume:        series.Volume,
		TradeCount:    len(trades),
		Series:        series.Points,
	}
	return stateDone
}

func (s *Strategy) flatLine(r *run) state {
	r.result = model.Analytics{
		Source: model.SourceFlatLine,
		Series: FlatLine(*r.currentPrice, r.now, r.window, s.cfg.FlatLinePoints),
	}
	return stateDone
}

func (s *Strategy) empty(r *run) state {
	r.result = model.Analytics{Source: model.SourceEmpty}
	return stateDone
}

func (s *Strategy) unavailable(r *run, err error) state {
	s.logger.Warn("price analytics unavailable",
		zap.String("token", r.token.Hex()),
		zap.Bool("log_fetch", fetcher.IsLogFetchError(err)),
		zap.Error(err),
	)
	r.currentPrice = nil
	r.result = model.Analytics{Source: model.SourceUnavailable}
	return stateDone
}

func (s *Strategy) latestBlock(ctx context.Context, r *run) (uint64, error) {
	if r.latestKnown {
		return r.latest, nil
	}
	latest, err := s.source.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	r.latest = latest
	r.latestKnown = true
	return latest, nil
}

func (s *Strategy) ensureCurrentPrice(ctx context.Context, r *run) {
	if r.priceTried {
		return
	}
	r.priceTried = true
	price, err := s.priceAt(ctx, r.token, new(big.Int).SetUint64(r.latest))
	if err != nil {
		s.logger.Debug("current price unavailable", zap.String("token", r.token.Hex()), zap.Error(err))
		return
	}
	if price > 0 {
		r.currentPrice = &price
	}
}

// priceAt reads getCurrentPrice, quoted in payment token base units per whole token.
func (s *Strategy) priceAt(ctx context.Context, token common.Address, block *big.Int) (float64, error) {
	raw, err := curve.CurrentPrice(ctx, s.caller, s.cfg.BondingCurve, token, block)
	if err != nil {
		return 0, err
	}
	return curve.ToFloat(raw, s.cfg.PaymentDecimals), nil
}

func (s *Strategy) windowBlocks(window time.Duration) uint64 {
	if window <= 0 {
		return 0
	}
	return uint64(window / s.cfg.BlockTime)
}

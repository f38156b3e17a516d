package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/curve"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

const (
	defaultBatchSize      = 2000
	defaultMaxConcurrency = 8
)

// Chain is the subset of the chain client the fetcher reads from.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// LogFetchError wraps an RPC failure while reading logs or blocks.
type LogFetchError struct {
	Contract  common.Address
	FromBlock uint64
	ToBlock   uint64
	Err       error
}

func (e *LogFetchError) Error() string {
	if e.Contract == (common.Address{}) {
		return fmt.Sprintf("fetch blocks %d-%d: %v", e.FromBlock, e.ToBlock, e.Err)
	}
	return fmt.Sprintf("fetch logs for %s in blocks %d-%d: %v", e.Contract.Hex(), e.FromBlock, e.ToBlock, e.Err)
}

func (e *LogFetchError) Unwrap() error {
	return e.Err
}

// IsLogFetchError reports whether err carries a *LogFetchError.
func IsLogFetchError(err error) bool {
	var target *LogFetchError
	return errors.As(err, &target)
}

// Config tunes log queries.
type Config struct {
	BatchSize      uint64
	MaxConcurrency int
}

// Fetcher reads Transfer logs and block timestamps. Failures are returned, never retried.
type Fetcher struct {
	chain  Chain
	cfg    Config
	logger *zap.Logger
}

// New builds a Fetcher.
func New(chainClient Chain, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Fetcher{chain: chainClient, cfg: cfg, logger: logger}
}

// LatestBlock returns the chain head.
func (f *Fetcher) LatestBlock(ctx context.Context) (uint64, error) {
	latest, err := f.chain.LatestBlockNumber(ctx)
	if err != nil {
		return 0, &LogFetchError{Err: fmt.Errorf("latest block: %w", err)}
	}
	return latest, nil
}

// FetchTransfers returns every Transfer emitted by contract in [fromBlock, toBlock].
func (f *Fetcher) FetchTransfers(ctx context.Context, contract common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	topic, err := curve.TransferTopic()
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, contract, fromBlock, toBlock, [][][]common.Hash{{{topic}}})
}

// FetchTransfersInvolving returns Transfers emitted by contract where party is sender or receiver.
func (f *Fetcher) FetchTransfersInvolving(ctx context.Context, contract, party common.Address, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	topic, err := curve.TransferTopic()
	if err != nil {
		return nil, err
	}
	partyTopic := common.BytesToHash(party.Bytes())
	filters := [][][]common.Hash{
		{{topic}, {partyTopic}},
		{{topic}, nil, {partyTopic}},
	}
	return f.fetch(ctx, contract, fromBlock, toBlock, filters)
}

func (f *Fetcher) fetch(ctx context.Context, contract common.Address, fromBlock, toBlock uint64, filters [][][]common.Hash) ([]model.TransferEvent, error) {
	if fromBlock > toBlock {
		return nil, nil
	}
	ranges, err := SplitRange(fromBlock, toBlock, f.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	type logKey struct {
		tx    common.Hash
		index uint
	}
	seen := make(map[logKey]struct{})
	events := make([]model.TransferEvent, 0)

	for _, blockRange := range ranges {
		for _, topics := range filters {
			logs, err := f.chain.FilterLogs(ctx, blockRange.From, blockRange.To, []common.Address{contract}, topics)
			if err != nil {
				return nil, &LogFetchError{Contract: contract, FromBlock: blockRange.From, ToBlock: blockRange.To, Err: err}
			}
			for _, log := range logs {
				if log.Removed {
					continue
				}
				key := logKey{tx: log.TxHash, index: log.Index}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}

				event, err := curve.DecodeTransfer(log)
				if err != nil {
					f.logger.Debug("skip undecodable transfer", zap.String("contract", contract.Hex()), zap.Error(err))
					continue
				}
				events = append(events, event)
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	f.logger.Debug("fetched transfers",
		zap.String("contract", contract.Hex()),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", toBlock),
		zap.Int("count", len(events)),
	)
	return events, nil
}

// BlockTimestamps resolves each unique block once, with at most MaxConcurrency requests in flight.
func (f *Fetcher) BlockTimestamps(ctx context.Context, blocks []uint64) (map[uint64]time.Time, error) {
	unique := make(map[uint64]struct{}, len(blocks))
	for _, block := range blocks {
		unique[block] = struct{}{}
	}

	var mu sync.Mutex
	out := make(map[uint64]time.Time, len(unique))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.cfg.MaxConcurrency)
	for block := range unique {
		block := block
		group.Go(func() error {
			ts, err := f.chain.BlockTimestamp(groupCtx, block)
			if err != nil {
				return &LogFetchError{FromBlock: block, ToBlock: block, Err: fmt.Errorf("block timestamp: %w", err)}
			}
			mu.Lock()
			out[block] = ts
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// UniqueBlocks collects block numbers across event batches.
func UniqueBlocks(batches ...[]model.TransferEvent) []uint64 {
	seen := make(map[uint64]struct{})
	blocks := make([]uint64, 0)
	for _, batch := range batches {
		for _, event := range batch {
			if _, ok := seen[event.BlockNumber]; ok {
				continue
			}
			seen[event.BlockNumber] = struct{}{}
			blocks = append(blocks, event.BlockNumber)
		}
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	return blocks
}

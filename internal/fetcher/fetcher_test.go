package fetcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/curve"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

var (
	tokenAddr   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	paymentAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	curveAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice       = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type filterCall struct {
	from, to uint64
	topics   [][]common.Hash
}

type fakeChain struct {
	mu          sync.Mutex
	logs        []types.Log
	filterErr   error
	filterCalls []filterCall

	tsCalls   atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	tsErr     error
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) { return 1000, nil }

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (time.Time, error) {
	f.tsCalls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxFlight.Load()
		if current <= peak || f.maxFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	if f.tsErr != nil {
		return time.Time{}, f.tsErr
	}
	return time.Unix(int64(1700000000+number), 0).UTC(), nil
}

func (f *fakeChain) FilterLogs(_ context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls = append(f.filterCalls, filterCall{from: from, to: to, topics: topics})
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	out := make([]types.Log, 0)
	for _, log := range f.logs {
		if log.BlockNumber < from || log.BlockNumber > to || log.Address != addresses[0] {
			continue
		}
		if !matchTopics(log.Topics, topics) {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func matchTopics(logTopics []common.Hash, filter [][]common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(logTopics) {
			return false
		}
		matched := false
		for _, option := range options {
			if logTopics[i] == option {
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func transferLog(t *testing.T, contract, from, to common.Address, amount int64, block uint64, tx string, index uint) types.Log {
	t.Helper()
	parsed, err := curve.ERC20ABI()
	require.NoError(t, err)
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(big.NewInt(amount))
	require.NoError(t, err)
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{parsed.Events["Transfer"].ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(tx),
		Index:       index,
	}
}

func TestFetchTransfersBatchesAndDecodes(t *testing.T) {
	chain := &fakeChain{logs: []types.Log{
		transferLog(t, tokenAddr, curveAddr, alice, 100, 15, "0x01", 0),
		transferLog(t, tokenAddr, alice, curveAddr, 40, 3, "0x02", 1),
		{Address: tokenAddr, Topics: []common.Hash{common.HexToHash("0xdead")}, BlockNumber: 5},
	}}
	f := New(chain, Config{BatchSize: 10}, nil)

	events, err := f.FetchTransfers(context.Background(), tokenAddr, 0, 19)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, uint64(3), events[0].BlockNumber, "events are ordered by block")
	assert.Equal(t, int64(40), events[0].Amount.Int64())
	assert.Equal(t, curveAddr, events[1].From)
	assert.Len(t, chain.filterCalls, 2, "two batches of ten blocks")
}

func TestFetchTransfersInvolvingMergesBothSides(t *testing.T) {
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	chain := &fakeChain{logs: []types.Log{
		transferLog(t, paymentAddr, alice, curveAddr, 1000, 10, "0x01", 0),
		transferLog(t, paymentAddr, curveAddr, alice, 600, 11, "0x02", 0),
		transferLog(t, paymentAddr, alice, other, 5, 12, "0x03", 0),
		// curve paying itself matches both filters and must appear once
		transferLog(t, paymentAddr, curveAddr, curveAddr, 7, 13, "0x04", 0),
	}}
	f := New(chain, Config{BatchSize: 100}, nil)

	events, err := f.FetchTransfersInvolving(context.Background(), paymentAddr, curveAddr, 0, 50)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, event := range events {
		assert.True(t, event.From == curveAddr || event.To == curveAddr)
	}
}

func TestFetchTransfersReturnsLogFetchError(t *testing.T) {
	rpcErr := errors.New("429 too many requests")
	chain := &fakeChain{filterErr: rpcErr}
	f := New(chain, Config{BatchSize: 100}, nil)

	_, err := f.FetchTransfers(context.Background(), tokenAddr, 0, 250)
	require.Error(t, err)

	var fetchErr *LogFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, tokenAddr, fetchErr.Contract)
	assert.Equal(t, uint64(0), fetchErr.FromBlock)
	assert.ErrorIs(t, err, rpcErr)
	assert.Len(t, chain.filterCalls, 1, "no retries")
}

func TestFetchTransfersEmptyRange(t *testing.T) {
	f := New(&fakeChain{}, Config{}, nil)
	events, err := f.FetchTransfers(context.Background(), tokenAddr, 10, 9)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestBlockTimestampsDeduplicatesAndBounds(t *testing.T) {
	chain := &fakeChain{}
	f := New(chain, Config{MaxConcurrency: 2}, nil)

	blocks := []uint64{5, 5, 6, 7, 8, 9, 6, 5}
	out, err := f.BlockTimestamps(context.Background(), blocks)
	require.NoError(t, err)

	assert.Len(t, out, 5)
	assert.Equal(t, int32(5), chain.tsCalls.Load(), "one request per unique block")
	assert.LessOrEqual(t, chain.maxFlight.Load(), int32(2))
	assert.Equal(t, time.Unix(1700000007, 0).UTC(), out[7])
}

func TestBlockTimestampsError(t *testing.T) {
	chain := &fakeChain{tsErr: errors.New("header not found")}
	f := New(chain, Config{}, nil)

	_, err := f.BlockTimestamps(context.Background(), []uint64{1, 2})
	assert.True(t, IsLogFetchError(err))
}

func TestUniqueBlocks(t *testing.T) {
	tokens := []model.TransferEvent{{BlockNumber: 9}, {BlockNumber: 3}, {BlockNumber: 9}}
	payments := []model.TransferEvent{{BlockNumber: 3}, {BlockNumber: 4}}

	assert.Equal(t, []uint64{3, 4, 9}, UniqueBlocks(tokens, payments))
	assert.Empty(t, UniqueBlocks())
}

package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
)

// Client wraps go-ethereum RPC and provides the chain reads songscope needs.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL. m may be nil.
func NewClient(ctx context.Context, rpcURL string, m *metrics.Metrics) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		metrics:   m,
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	number, err := c.ethClient.BlockNumber(ctx)
	c.observe("eth_blockNumber", start, err)
	return number, err
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	start := time.Now()
	header, err := c.ethClient.HeaderByNumber(ctx, number)
	c.observe("eth_getBlockByNumber", start, err)
	return header, err
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return time.Unix(int64(ts), 0).UTC(), nil
	}

	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return time.Unix(int64(ts), 0).UTC(), nil
}

// FilterLogs returns logs in the given range for addresses and positional topic filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topics [][]common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}
	start := time.Now()
	logs, err := c.ethClient.FilterLogs(ctx, query)
	c.observe("eth_getLogs", start, err)
	return logs, err
}

// CallContract performs an eth_call for a contract method. A nil blockNumber reads latest state.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	start := time.Now()
	resp, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	c.observe("eth_call", start, err)
	return resp, err
}

// TransactionReceipt returns the receipt of a mined transaction.
// It returns ethereum.NotFound when the node does not know the transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
	c.observe("eth_getTransactionReceipt", start, err)
	return receipt, err
}

func (c *Client) observe(method string, start time.Time, err error) {
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
}

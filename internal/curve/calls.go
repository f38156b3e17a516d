package curve

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller performs eth_call reads. A nil block reads latest state.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// CurrentPrice reads getCurrentPrice(token) from the bonding curve at the given block.
func CurrentPrice(ctx context.Context, caller Caller, curveAddr, token common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := BondingCurveABI()
	if err != nil {
		return nil, fmt.Errorf("parse bonding curve abi: %w", err)
	}
	values, err := callMethod(ctx, caller, curveAddr, parsed, "getCurrentPrice", block, token)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected getCurrentPrice values: %d", len(values))
	}
	return asBigInt(values[0])
}

// Decimals reads decimals() from an ERC20 token.
func Decimals(ctx context.Context, caller Caller, token common.Address) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "decimals", nil)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected decimals values: %d", len(values))
	}
	return asUint8(values[0])
}

func callMethod(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// DecimalsCache caches token decimals in memory.
type DecimalsCache struct {
	mu    sync.RWMutex
	items map[common.Address]uint8
}

// NewDecimalsCache creates an empty cache.
func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{items: make(map[common.Address]uint8)}
}

// Get returns cached decimals if present.
func (c *DecimalsCache) Get(token common.Address) (uint8, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.items[token]
	return value, ok
}

// Set stores decimals for a token.
func (c *DecimalsCache) Set(token common.Address, decimals uint8) {
	c.mu.Lock()
	c.items[token] = decimals
	c.mu.Unlock()
}

// Resolve returns cached decimals or reads them from chain and caches the result.
func (c *DecimalsCache) Resolve(ctx context.Context, caller Caller, token common.Address) (uint8, error) {
	if value, ok := c.Get(token); ok {
		return value, nil
	}
	value, err := Decimals(ctx, caller, token)
	if err != nil {
		return 0, err
	}
	c.Set(token, value)
	return value, nil
}

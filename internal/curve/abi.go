package curve

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const bondingCurveABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "paymentSpent", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokensReceived", "type": "uint256"}
    ],
    "name": "Bought",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokensSpent", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "paymentReceived", "type": "uint256"}
    ],
    "name": "Sold",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "getCurrentPrice",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20ABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}
]`

var (
	bondingCurveABI     abi.ABI
	bondingCurveABIOnce sync.Once
	bondingCurveABIErr  error

	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
	erc20ABIErr  error
)

// BondingCurveABI returns the parsed bonding-curve ABI.
func BondingCurveABI() (abi.ABI, error) {
	bondingCurveABIOnce.Do(func() {
		bondingCurveABI, bondingCurveABIErr = abi.JSON(strings.NewReader(bondingCurveABIJSON))
	})
	return bondingCurveABI, bondingCurveABIErr
}

// ERC20ABI returns the parsed subset of the ERC20 ABI songscope uses.
func ERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABI, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABI, erc20ABIErr
}

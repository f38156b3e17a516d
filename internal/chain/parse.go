package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress validates and converts a hex address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseOptionalAddress is ParseAddress but maps an empty input to the zero address.
func ParseOptionalAddress(input string) (common.Address, error) {
	if strings.TrimSpace(input) == "" {
		return common.Address{}, nil
	}
	return ParseAddress(input)
}

// ParseTxHash validates and converts a 32-byte transaction hash.
func ParseTxHash(input string) (common.Hash, error) {
	input = strings.TrimSpace(input)
	data, err := hexutil.Decode(input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid tx hash: %q", input)
	}
	if len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid tx hash length: %q", input)
	}
	return common.BytesToHash(data), nil
}

// AddressKey is the canonical lower-cased form of an address used for keys and storage.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

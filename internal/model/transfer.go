package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransferEvent is a decoded ERC20 Transfer log.
type TransferEvent struct {
	Contract    common.Address `json:"contract"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Amount      *big.Int       `json:"amount"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	LogIndex    uint           `json:"log_index"`
}

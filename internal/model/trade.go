package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Direction is the side of a correlated trade relative to the bonding curve.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// CorrelatedTrade joins a song token transfer with the payment that settled it.
// Amounts are in decimal units of their tokens.
type CorrelatedTrade struct {
	TxHash        common.Hash    `json:"tx_hash"`
	Timestamp     time.Time      `json:"timestamp"`
	Direction     Direction      `json:"direction"`
	Trader        common.Address `json:"trader"`
	TokenAmount   float64        `json:"token_amount"`
	PaymentAmount float64        `json:"payment_amount"`
	PricePerToken float64        `json:"price_per_token"`
}

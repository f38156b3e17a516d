package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType classifies a persisted trade.
type TradeType string

const (
	TradeTypeDeploy TradeType = "deploy"
	TradeTypeBuy    TradeType = "buy"
	TradeTypeSell   TradeType = "sell"
)

// TradeRecord is the durable, append-only record of a canonical bonding-curve trade.
// Addresses and hashes are stored lower-cased hex.
type TradeRecord struct {
	ID            string          `json:"id"`
	TokenAddress  string          `json:"token_address"`
	TxHash        string          `json:"tx_hash"`
	BlockNumber   uint64          `json:"block_number"`
	Timestamp     time.Time       `json:"timestamp"`
	TraderAddress string          `json:"trader_address"`
	TradeType     TradeType       `json:"trade_type"`
	TokenAmount   decimal.Decimal `json:"token_amount"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PricePerToken decimal.Decimal `json:"price_per_token"`
	EntityID      *string         `json:"entity_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TradeNotification is published after a new trade record is stored.
type TradeNotification struct {
	TokenAddress string    `json:"token_address"`
	TxHash       string    `json:"tx_hash"`
	TradeType    TradeType `json:"trade_type"`
	Timestamp    time.Time `json:"timestamp"`
}

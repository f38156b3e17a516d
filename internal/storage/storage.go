package storage

import (
	"context"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// TradeStore persists canonical trade records. Records are append-only and
// unique by transaction hash. Hashes and addresses are lower-cased hex.
type TradeStore interface {
	// FindByTxHash returns ErrNotFound when no record exists.
	FindByTxHash(ctx context.Context, txHash string) (model.TradeRecord, error)
	// Insert returns ErrDuplicateKey when a record with the same tx hash or id exists.
	Insert(ctx context.Context, record model.TradeRecord) error
	CountForToken(ctx context.Context, tokenAddress string) (int64, error)
	// ListByToken returns the newest records first.
	ListByToken(ctx context.Context, tokenAddress string, limit int) ([]model.TradeRecord, error)
}

// Validate checks the fields every store requires.
func Validate(record model.TradeRecord) error {
	if record.ID == "" || record.TxHash == "" || record.TokenAddress == "" {
		return ErrInvalidInput
	}
	switch record.TradeType {
	case model.TradeTypeDeploy, model.TradeTypeBuy, model.TradeTypeSell:
		return nil
	default:
		return ErrInvalidInput
	}
}

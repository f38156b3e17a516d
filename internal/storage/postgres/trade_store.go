package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
)

var _ storage.TradeStore = (*Store)(nil)

const tradeColumns = `
	id::text, token_address, tx_hash, block_number, block_timestamp, trader_address,
	trade_type, token_amount::text, payment_amount::text, price_per_token::text,
	entity_id, created_at`

// FindByTxHash returns the record for txHash or storage.ErrNotFound.
func (s *Store) FindByTxHash(ctx context.Context, txHash string) (model.TradeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM song_trades WHERE tx_hash = $1`, strings.ToLower(txHash))
	record, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return model.TradeRecord{}, storage.ErrNotFound
		}
		return model.TradeRecord{}, fmt.Errorf("find trade %s: %w", txHash, err)
	}
	return record, nil
}

// Insert stores record. A unique violation on id or tx_hash is storage.ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, record model.TradeRecord) error {
	if err := storage.Validate(record); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO song_trades (
			id, token_address, tx_hash, block_number, block_timestamp, trader_address,
			trade_type, token_amount, payment_amount, price_per_token, entity_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		record.ID,
		strings.ToLower(record.TokenAddress),
		strings.ToLower(record.TxHash),
		int64(record.BlockNumber),
		record.Timestamp.UTC(),
		strings.ToLower(record.TraderAddress),
		string(record.TradeType),
		record.TokenAmount.String(),
		record.PaymentAmount.String(),
		record.PricePerToken.String(),
		record.EntityID,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade %s: %w", record.TxHash, err)
	}
	return nil
}

// CountForToken returns the number of records for tokenAddress.
func (s *Store) CountForToken(ctx context.Context, tokenAddress string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM song_trades WHERE token_address = $1`, strings.ToLower(tokenAddress)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades for %s: %w", tokenAddress, err)
	}
	return count, nil
}

// ListByToken returns up to limit records for tokenAddress, newest first. limit <= 0 means all.
func (s *Store) ListByToken(ctx context.Context, tokenAddress string, limit int) ([]model.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM song_trades WHERE token_address = $1
		ORDER BY block_timestamp DESC, block_number DESC`
	args := []interface{}{strings.ToLower(tokenAddress)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", tokenAddress, err)
	}
	defer rows.Close()

	records := make([]model.TradeRecord, 0)
	for rows.Next() {
		record, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trades for %s: %w", tokenAddress, err)
	}
	return records, nil
}

func scanTrade(row pgx.Row) (model.TradeRecord, error) {
	var (
		record                      model.TradeRecord
		blockNumber                 int64
		tradeType                   string
		tokenAmount, payment, price string
	)
	err := row.Scan(
		&record.ID,
		&record.TokenAddress,
		&record.TxHash,
		&blockNumber,
		&record.Timestamp,
		&record.TraderAddress,
		&tradeType,
		&tokenAmount,
		&payment,
		&price,
		&record.EntityID,
		&record.CreatedAt,
	)
	if err != nil {
		return model.TradeRecord{}, err
	}

	record.BlockNumber = uint64(blockNumber)
	record.TradeType = model.TradeType(tradeType)
	record.Timestamp = record.Timestamp.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	if record.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
		return model.TradeRecord{}, fmt.Errorf("parse token_amount: %w", err)
	}
	if record.PaymentAmount, err = decimal.NewFromString(payment); err != nil {
		return model.TradeRecord{}, fmt.Errorf("parse payment_amount: %w", err)
	}
	if record.PricePerToken, err = decimal.NewFromString(price); err != nil {
		return model.TradeRecord{}, fmt.Errorf("parse price_per_token: %w", err)
	}
	return record, nil
}

package tradeindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/curve"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/notify"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
)

var (
	// ErrReceiptNotFound is returned when the node does not know the transaction.
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	// ErrEventNotFound is returned when no bonding-curve trade for the token is in the receipt.
	ErrEventNotFound = errors.New("trade event not found in receipt")
)

// Chain is the subset of chain reads the indexer needs.
type Chain interface {
	curve.Caller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
}

// Config holds the contract addresses and fallback decimals.
type Config struct {
	BondingCurve    common.Address
	PaymentToken    common.Address
	TokenDecimals   uint8
	PaymentDecimals uint8
}

// Indexer turns transaction hashes into canonical trade records.
type Indexer struct {
	cfg       Config
	chain     Chain
	store     storage.TradeStore
	publisher notify.Publisher
	decimals  *curve.DecimalsCache
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an indexer. publisher and m may be nil.
func New(cfg Config, c Chain, store storage.TradeStore, publisher notify.Publisher, m *metrics.Metrics, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		cfg:       cfg,
		chain:     c,
		store:     store,
		publisher: publisher,
		decimals:  curve.NewDecimalsCache(),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Index decodes the trade for token in txHash and stores it once.
// Re-indexing a known hash returns the stored record unchanged.
func (ix *Indexer) Index(ctx context.Context, txHash common.Hash, token common.Address, entityID *string) (model.TradeRecord, error) {
	hashKey := txHash.Hex()
	existing, err := ix.store.FindByTxHash(ctx, hashKey)
	if err == nil {
		ix.metrics.RecordTradeIndexed("existing", string(existing.TradeType))
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.TradeRecord{}, fmt.Errorf("lookup trade %s: %w", hashKey, err)
	}

	receipt, err := ix.chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			ix.metrics.RecordTradeIndexed("receipt_not_found", "")
			return model.TradeRecord{}, fmt.Errorf("%w: %s", ErrReceiptNotFound, hashKey)
		}
		return model.TradeRecord{}, fmt.Errorf("fetch receipt %s: %w", hashKey, err)
	}
	if receipt == nil {
		ix.metrics.RecordTradeIndexed("receipt_not_found", "")
		return model.TradeRecord{}, fmt.Errorf("%w: %s", ErrReceiptNotFound, hashKey)
	}

	blockNumber := receipt.BlockNumber.Uint64()
	timestamp, err := ix.chain.BlockTimestamp(ctx, blockNumber)
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("block %d timestamp: %w", blockNumber, err)
	}

	event, err := ix.findEvent(receipt, token)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			ix.metrics.RecordTradeIndexed("event_not_found", "")
		}
		return model.TradeRecord{}, err
	}

	record, err := ix.buildRecord(ctx, event, hashKey, blockNumber, timestamp, entityID)
	if err != nil {
		return model.TradeRecord{}, err
	}

	if err := ix.store.Insert(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			stored, findErr := ix.store.FindByTxHash(ctx, hashKey)
			if findErr != nil {
				return model.TradeRecord{}, fmt.Errorf("reload conflicting trade %s: %w", hashKey, findErr)
			}
			ix.logger.Info("trade indexed concurrently", zap.String("tx_hash", hashKey))
			ix.metrics.RecordTradeIndexed("conflict", string(stored.TradeType))
			return stored, nil
		}
		return model.TradeRecord{}, fmt.Errorf("insert trade %s: %w", hashKey, err)
	}

	ix.metrics.RecordTradeIndexed("inserted", string(record.TradeType))
	ix.logger.Info("trade indexed",
		zap.String("tx_hash", hashKey),
		zap.String("token", record.TokenAddress),
		zap.String("type", string(record.TradeType)),
		zap.String("price", record.PricePerToken.String()),
	)
	ix.publish(ctx, record)
	return record, nil
}

// ListTrades returns the newest stored trades for token.
func (ix *Indexer) ListTrades(ctx context.Context, token common.Address, limit int) ([]model.TradeRecord, error) {
	return ix.store.ListByToken(ctx, chain.AddressKey(token), limit)
}

func (ix *Indexer) findEvent(receipt *types.Receipt, token common.Address) (curve.TradeEvent, error) {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != ix.cfg.BondingCurve {
			continue
		}
		event, err := curve.DecodeTrade(*log)
		if err != nil {
			var decodeErr *curve.DecodeError
			if errors.As(err, &decodeErr) {
				ix.logger.Debug("skip undecodable curve log", zap.Uint("log_index", log.Index), zap.Error(err))
				continue
			}
			return nil, err
		}
		if event.TokenAddress() == token {
			return event, nil
		}
	}
	return nil, fmt.Errorf("%w: token %s in tx %s", ErrEventNotFound, chain.AddressKey(token), receipt.TxHash.Hex())
}

func (ix *Indexer) buildRecord(
	ctx context.Context,
	event curve.TradeEvent,
	hashKey string,
	blockNumber uint64,
	timestamp time.Time,
	entityID *string,
) (model.TradeRecord, error) {
	tokenKey := chain.AddressKey(event.TokenAddress())
	tokenDecimals := ix.resolveDecimals(ctx, event.TokenAddress(), ix.cfg.TokenDecimals)
	paymentDecimals := ix.cfg.PaymentDecimals
	if ix.cfg.PaymentToken != (common.Address{}) {
		paymentDecimals = ix.resolveDecimals(ctx, ix.cfg.PaymentToken, ix.cfg.PaymentDecimals)
	}

	rawTokens, rawPayment := event.Amounts()
	tokenAmount := curve.ToDecimal(rawTokens, tokenDecimals)
	paymentAmount := curve.ToDecimal(rawPayment, paymentDecimals)
	price := decimal.Zero
	if !tokenAmount.IsZero() {
		price = paymentAmount.DivRound(tokenAmount, 18)
	}

	tradeType, err := ix.classify(ctx, tokenKey, event)
	if err != nil {
		return model.TradeRecord{}, err
	}

	return model.TradeRecord{
		ID:            uuid.NewString(),
		TokenAddress:  tokenKey,
		TxHash:        hashKey,
		BlockNumber:   blockNumber,
		Timestamp:     timestamp.UTC(),
		TraderAddress: chain.AddressKey(event.TraderAddress()),
		TradeType:     tradeType,
		TokenAmount:   tokenAmount,
		PaymentAmount: paymentAmount,
		PricePerToken: price,
		EntityID:      entityID,
		CreatedAt:     ix.now().UTC(),
	}, nil
}

// classify marks a token's first stored trade as deploy when it is Sold-shaped.
func (ix *Indexer) classify(ctx context.Context, tokenKey string, event curve.TradeEvent) (model.TradeType, error) {
	switch event.(type) {
	case *curve.Bought:
		return model.TradeTypeBuy, nil
	case *curve.Sold:
		count, err := ix.store.CountForToken(ctx, tokenKey)
		if err != nil {
			return "", fmt.Errorf("count trades for %s: %w", tokenKey, err)
		}
		if count == 0 {
			return model.TradeTypeDeploy, nil
		}
		return model.TradeTypeSell, nil
	default:
		return "", fmt.Errorf("unsupported trade event %T", event)
	}
}

func (ix *Indexer) resolveDecimals(ctx context.Context, token common.Address, fallback uint8) uint8 {
	value, err := ix.decimals.Resolve(ctx, ix.chain, token)
	if err != nil {
		ix.logger.Warn("decimals lookup failed, using configured default",
			zap.String("token", chain.AddressKey(token)),
			zap.Uint8("decimals", fallback),
			zap.Error(err),
		)
		return fallback
	}
	return value
}

func (ix *Indexer) publish(ctx context.Context, record model.TradeRecord) {
	if ix.publisher == nil {
		return
	}
	err := ix.publisher.PublishTrade(ctx, model.TradeNotification{
		TokenAddress: record.TokenAddress,
		TxHash:       record.TxHash,
		TradeType:    record.TradeType,
		Timestamp:    record.Timestamp,
	})
	if err != nil {
		ix.logger.Warn("publish trade notification failed", zap.String("tx_hash", record.TxHash), zap.Error(err))
	}
}

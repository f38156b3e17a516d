package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu      sync.RWMutex
	byTx    map[string]model.TradeRecord
	ids     map[string]struct{}
	byToken map[string][]string // token -> tx hashes in insert order
}

var _ storage.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates an empty store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byTx:    make(map[string]model.TradeRecord),
		ids:     make(map[string]struct{}),
		byToken: make(map[string][]string),
	}
}

// FindByTxHash returns the record for txHash.
func (s *TradeStore) FindByTxHash(_ context.Context, txHash string) (model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byTx[strings.ToLower(txHash)]
	if !ok {
		return model.TradeRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// Insert adds a record. Returns ErrDuplicateKey if the tx hash or id exists.
func (s *TradeStore) Insert(_ context.Context, record model.TradeRecord) error {
	if err := storage.Validate(record); err != nil {
		return err
	}
	record.TxHash = strings.ToLower(record.TxHash)
	record.TokenAddress = strings.ToLower(record.TokenAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTx[record.TxHash]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.ids[record.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.byTx[record.TxHash] = record
	s.ids[record.ID] = struct{}{}
	s.byToken[record.TokenAddress] = append(s.byToken[record.TokenAddress], record.TxHash)
	return nil
}

// CountForToken returns how many records exist for tokenAddress.
func (s *TradeStore) CountForToken(_ context.Context, tokenAddress string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byToken[strings.ToLower(tokenAddress)])), nil
}

// ListByToken returns up to limit records for tokenAddress, newest first.
func (s *TradeStore) ListByToken(_ context.Context, tokenAddress string, limit int) ([]model.TradeRecord, error) {
	s.mu.RLock()
	hashes := s.byToken[strings.ToLower(tokenAddress)]
	records := make([]model.TradeRecord, 0, len(hashes))
	for _, hash := range hashes {
		records = append(records, s.byTx[hash])
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].BlockNumber > records[j].BlockNumber
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

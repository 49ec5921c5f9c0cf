package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// TransactionStore is a thread-safe in-memory log of transactions, keyed
// by market. Transactions are append-only and chronological.
type TransactionStore struct {
	mu       sync.RWMutex
	all      []domain.Transaction
	byMarket map[string][]int // market ID → indexes into all
}

// NewTransactionStore creates an empty TransactionStore.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byMarket: make(map[string][]int),
	}
}

// Append adds a transaction to the log.
func (s *TransactionStore) Append(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byMarket[tx.MarketID] = append(s.byMarket[tx.MarketID], len(s.all))
	s.all = append(s.all, tx)
}

// ByMarket returns the transactions of one market in execution order.
// Returns an empty slice if the market has none.
func (s *TransactionStore) ByMarket(marketID string) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byMarket[marketID]
	result := make([]domain.Transaction, len(idx))
	for i, j := range idx {
		result[i] = s.all[j]
	}
	return result
}

// All returns every transaction in execution order.
func (s *TransactionStore) All() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, len(s.all))
	copy(result, s.all)
	return result
}

// Len is the number of transactions logged.
func (s *TransactionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.all)
}

// Volume is the total quantity traded.
func (s *TransactionStore) Volume() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, tx := range s.all {
		n += tx.Quantity
	}
	return n
}

// WriteJSONLines writes every transaction as one JSON object per line.
// The encoding depends only on the log's contents.
func (s *TransactionStore) WriteJSONLines(w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, tx := range s.All() {
		if err := enc.Encode(tx); err != nil {
			return fmt.Errorf("encode transaction %d: %w", i, err)
		}
	}
	return nil
}

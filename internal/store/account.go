package store

import (
	"cmp"
	"slices"
	"sync"

	"github.com/efreitasn/marketsim/internal/domain"
)

// AccountStore is a thread-safe in-memory store for agent accounts,
// keyed by agent ID.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*domain.Account),
	}
}

// Open creates an empty account for the agent if it has none.
func (s *AccountStore) Open(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[agentID]; !ok {
		s.accounts[agentID] = &domain.Account{AgentID: agentID}
	}
}

// Get returns a copy of an account. It returns
// domain.ErrAccountNotFound if the agent has no account.
func (s *AccountStore) Get(agentID string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[agentID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *a, nil
}

// RecordSubmission counts a submitted order against the account.
func (s *AccountStore) RecordSubmission(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[agentID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Submissions++
	return nil
}

// RecordFill applies one side of a transaction to the account.
func (s *AccountStore) RecordFill(agentID string, side domain.Side, price domain.Price, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[agentID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.Record(side, price, quantity)
	return nil
}

// All returns copies of every account, ordered by agent ID.
func (s *AccountStore) All() []domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, *a)
	}
	slices.SortFunc(result, func(a, b domain.Account) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return result
}

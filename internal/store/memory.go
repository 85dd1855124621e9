package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	usernames     map[string]string // username → user ID
	requests      map[string]*model.CollaborativeRequest
	contributions []model.Contribution
	holdings      map[string]map[string]*model.Holding // userID → symbol → holding
	transactions  []model.Transaction
	watchlists    map[string]map[string]bool // userID → symbol set
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*model.User),
		usernames:  make(map[string]string),
		requests:   make(map[string]*model.CollaborativeRequest),
		holdings:   make(map[string]map[string]*model.Holding),
		watchlists: make(map[string]map[string]bool),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrConflict, u.ID)
	}
	if _, ok := s.usernames[u.Username]; ok {
		return fmt.Errorf("%w: username %s", ErrConflict, u.Username)
	}

	// Store a copy to avoid external mutation.
	cp := *u
	s.users[u.ID] = &cp
	s.usernames[u.Username] = u.ID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, fmt.Errorf("%w: username %s", ErrNotFound, username)
	}
	cp := *s.users[id]
	return &cp, nil
}

// --- Collaborative requests ---

func (s *MemoryStore) CreateRequest(_ context.Context, r *model.CollaborativeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[r.ID]; ok {
		return fmt.Errorf("%w: request %s", ErrConflict, r.ID)
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id string) (*model.CollaborativeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListRequestsByParticipant(_ context.Context, userID string) ([]model.CollaborativeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]bool)
	for id, r := range s.requests {
		if r.InitiatorID == userID {
			ids[id] = true
		}
	}
	for _, c := range s.contributions {
		if c.UserID == userID {
			ids[c.RequestID] = true
		}
	}

	result := make([]model.CollaborativeRequest, 0, len(ids))
	for id := range ids {
		result = append(result, *s.requests[id])
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) GetContributions(_ context.Context, requestID string) ([]model.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Contribution
	for _, c := range s.contributions {
		if c.RequestID == requestID {
			result = append(result, c)
		}
	}
	return result, nil
}

// --- Atomic apply operations ---

func (s *MemoryStore) ApplyContribution(_ context.Context, c *model.Contribution, newStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[c.RequestID]
	if !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, c.RequestID)
	}
	if r.Status != model.StatusOpen {
		return fmt.Errorf("%w: request %s not in expected state", ErrConflict, c.RequestID)
	}
	u, ok := s.users[c.UserID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, c.UserID)
	}
	if u.CashBalance.LessThan(c.Amount) {
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, c.UserID)
	}

	// All checks passed: mutate everything under the one lock.
	u.CashBalance = u.CashBalance.Sub(c.Amount)
	s.contributions = append(s.contributions, *c)
	r.FundedAmount = r.FundedAmount.Add(c.Amount)
	r.Status = newStatus
	return nil
}

func (s *MemoryStore) ApplySettlement(_ context.Context, requestID string, holdings []model.Holding, txns []model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if r.Status != model.StatusFunded {
		return fmt.Errorf("%w: request %s not in expected state", ErrConflict, requestID)
	}
	for _, h := range holdings {
		if _, ok := s.users[h.UserID]; !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, h.UserID)
		}
	}

	for _, h := range holdings {
		s.upsertHoldingLocked(h.UserID, h.Symbol, h.Quantity, h.CostBasis)
	}
	s.transactions = append(s.transactions, txns...)
	r.Status = model.StatusSettled
	return nil
}

func (s *MemoryStore) ApplyCancellation(_ context.Context, requestID string, refunds []Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	if r.Status != model.StatusOpen && r.Status != model.StatusFunded {
		return fmt.Errorf("%w: request %s not in expected state", ErrConflict, requestID)
	}

	// Validate every refund target before touching any balance.
	for _, ref := range refunds {
		if _, ok := s.users[ref.UserID]; !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, ref.UserID)
		}
	}

	for _, ref := range refunds {
		u := s.users[ref.UserID]
		u.CashBalance = u.CashBalance.Add(ref.Amount)
	}
	r.Status = model.StatusCancelled
	return nil
}

// --- Holdings & transactions ---

func (s *MemoryStore) GetHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Holding
	for _, h := range s.holdings[userID] {
		result = append(result, *h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (s *MemoryStore) GetTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ApplyTrade(_ context.Context, txn *model.Transaction, cashDelta, qtyDelta, costDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[txn.UserID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, txn.UserID)
	}
	newBalance := u.CashBalance.Add(cashDelta)
	if newBalance.IsNegative() {
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, txn.UserID)
	}

	var currentQty decimal.Decimal
	if h, ok := s.holdings[txn.UserID][txn.Symbol]; ok {
		currentQty = h.Quantity
	}
	if currentQty.Add(qtyDelta).IsNegative() {
		return fmt.Errorf("%w: holding %s/%s", ErrInsufficientFunds, txn.UserID, txn.Symbol)
	}

	u.CashBalance = newBalance
	s.upsertHoldingLocked(txn.UserID, txn.Symbol, qtyDelta, costDelta)
	s.transactions = append(s.transactions, *txn)
	return nil
}

// --- Watchlist ---

func (s *MemoryStore) AddWatch(_ context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchlists[userID] == nil {
		s.watchlists[userID] = make(map[string]bool)
	}
	s.watchlists[userID][symbol] = true
	return nil
}

func (s *MemoryStore) RemoveWatch(_ context.Context, userID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.watchlists[userID], symbol)
	return nil
}

func (s *MemoryStore) GetWatchlist(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.watchlists[userID]))
	for sym := range s.watchlists[userID] {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// upsertHoldingLocked applies quantity/cost increments to the (user, symbol)
// holding, creating it on first touch. Caller must hold s.mu.
func (s *MemoryStore) upsertHoldingLocked(userID, symbol string, qtyDelta, costDelta decimal.Decimal) {
	if s.holdings[userID] == nil {
		s.holdings[userID] = make(map[string]*model.Holding)
	}
	h, ok := s.holdings[userID][symbol]
	if !ok {
		h = &model.Holding{UserID: userID, Symbol: symbol}
		s.holdings[userID][symbol] = h
	}
	h.Quantity = h.Quantity.Add(qtyDelta)
	h.CostBasis = h.CostBasis.Add(costDelta)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Users and requests are never cached: the ledger's exclusive regions read
// them before deciding a state transition, and a read-through Set racing a
// write-side Del can pin a pre-write snapshot. Only presentation reads
// (holdings, watchlists) go through Redis; the store-level status guards
// on the Apply* operations are the backstop, not the cache.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) CreateRequest(ctx context.Context, r *model.CollaborativeRequest) error {
	return s.primary.CreateRequest(ctx, r)
}

func (s *CachedStore) ApplyContribution(ctx context.Context, c *model.Contribution, newStatus string) error {
	return s.primary.ApplyContribution(ctx, c, newStatus)
}

func (s *CachedStore) ApplySettlement(ctx context.Context, requestID string, holdings []model.Holding, txns []model.Transaction) error {
	if err := s.primary.ApplySettlement(ctx, requestID, holdings, txns); err != nil {
		return err
	}
	keys := make([]string, 0, len(holdings))
	for _, h := range holdings {
		keys = append(keys, holdingsKey(h.UserID))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedStore) ApplyCancellation(ctx context.Context, requestID string, refunds []Refund) error {
	return s.primary.ApplyCancellation(ctx, requestID, refunds)
}

func (s *CachedStore) ApplyTrade(ctx context.Context, txn *model.Transaction, cashDelta, qtyDelta, costDelta decimal.Decimal) error {
	if err := s.primary.ApplyTrade(ctx, txn, cashDelta, qtyDelta, costDelta); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingsKey(txn.UserID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingsKey(userID)).Bytes()
	if err == nil {
		var holdings []model.Holding
		if json.Unmarshal(data, &holdings) == nil {
			return holdings, nil
		}
	}

	holdings, err := s.primary.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(holdings); err == nil {
		s.rdb.Set(ctx, holdingsKey(userID), data, s.ttl)
	}
	return holdings, nil
}

// --- Passthrough (not cached) ---

// Users, requests, participant listings, contribution and transaction
// history feed the authentication path and the ledger's exclusive
// regions; a stale snapshot there could misdirect a state transition,
// so these always read the primary.

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

func (s *CachedStore) GetRequest(ctx context.Context, id string) (*model.CollaborativeRequest, error) {
	return s.primary.GetRequest(ctx, id)
}

func (s *CachedStore) ListRequestsByParticipant(ctx context.Context, userID string) ([]model.CollaborativeRequest, error) {
	return s.primary.ListRequestsByParticipant(ctx, userID)
}

func (s *CachedStore) GetContributions(ctx context.Context, requestID string) ([]model.Contribution, error) {
	return s.primary.GetContributions(ctx, requestID)
}

func (s *CachedStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.GetTransactionsByUser(ctx, userID)
}

func (s *CachedStore) AddWatch(ctx context.Context, userID, symbol string) error {
	if err := s.primary.AddWatch(ctx, userID, symbol); err != nil {
		return err
	}
	s.rdb.Del(ctx, watchKey(userID))
	return nil
}

func (s *CachedStore) RemoveWatch(ctx context.Context, userID, symbol string) error {
	if err := s.primary.RemoveWatch(ctx, userID, symbol); err != nil {
		return err
	}
	s.rdb.Del(ctx, watchKey(userID))
	return nil
}

func (s *CachedStore) GetWatchlist(ctx context.Context, userID string) ([]string, error) {
	data, err := s.rdb.Get(ctx, watchKey(userID)).Bytes()
	if err == nil {
		var symbols []string
		if json.Unmarshal(data, &symbols) == nil {
			return symbols, nil
		}
	}

	symbols, err := s.primary.GetWatchlist(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(symbols); err == nil {
		s.rdb.Set(ctx, watchKey(userID), data, s.ttl)
	}
	return symbols, nil
}

func holdingsKey(uid string) string { return fmt.Sprintf("holdings:%s", uid) }
func watchKey(uid string) string    { return fmt.Sprintf("watch:%s", uid) }

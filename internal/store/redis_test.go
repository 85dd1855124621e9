package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/poolvest/ledger/internal/model"
)

func newCachedStore(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis, context.Context) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ms := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		err := ms.CreateUser(ctx, &model.User{
			ID: id, Username: id, CashBalance: d(1000), CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err := ms.CreateRequest(ctx, &model.CollaborativeRequest{
		ID: "r1", InitiatorID: "u1", Symbol: "AAPL",
		TargetAmount: d(500), Status: model.StatusOpen, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewCachedStore(ms, rdb, time.Minute), ms, mr, ctx
}

func TestCachedStore_RequestsBypassCache(t *testing.T) {
	cs, _, mr, ctx := newCachedStore(t)

	// A leftover snapshot from an older key scheme must never shadow
	// the primary. Requests and users are not cached at all.
	mr.Set("request:r1", `{"id":"r1","status":"open","funded_amount":"0","target_amount":"500"}`)
	mr.Set("user:u2", `{"id":"u2","cash_balance":"999999"}`)

	c := &model.Contribution{
		ID: "c1", RequestID: "r1", UserID: "u2",
		Amount: d(500), Timestamp: time.Now().UTC(),
	}
	if err := cs.ApplyContribution(ctx, c, model.StatusFunded); err != nil {
		t.Fatal(err)
	}

	r, err := cs.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != model.StatusFunded {
		t.Errorf("expected funded, got %s", r.Status)
	}
	if !r.FundedAmount.Equal(d(500)) {
		t.Errorf("expected funded amount 500, got %s", r.FundedAmount)
	}
	u, err := cs.GetUser(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if !u.CashBalance.Equal(d(500)) {
		t.Errorf("expected balance 500, got %s", u.CashBalance)
	}
}

func TestCachedStore_SettlementInvalidatesHoldings(t *testing.T) {
	cs, _, mr, ctx := newCachedStore(t)

	c := &model.Contribution{
		ID: "c1", RequestID: "r1", UserID: "u2",
		Amount: d(500), Timestamp: time.Now().UTC(),
	}
	if err := cs.ApplyContribution(ctx, c, model.StatusFunded); err != nil {
		t.Fatal(err)
	}

	// Warm the cache with the pre-settlement (empty) holdings.
	if h, err := cs.GetHoldings(ctx, "u2"); err != nil || len(h) != 0 {
		t.Fatalf("expected no holdings yet, got %v (%v)", h, err)
	}
	if !mr.Exists(holdingsKey("u2")) {
		t.Fatal("expected holdings cache entry after read")
	}

	holdings := []model.Holding{{UserID: "u2", Symbol: "AAPL", Quantity: d(5), CostBasis: d(500)}}
	txns := []model.Transaction{{
		ID: "t1", UserID: "u2", Symbol: "AAPL", Side: "buy",
		Quantity: d(5), Price: d(100), Timestamp: time.Now().UTC(),
	}}
	if err := cs.ApplySettlement(ctx, "r1", holdings, txns); err != nil {
		t.Fatal(err)
	}

	if mr.Exists(holdingsKey("u2")) {
		t.Error("settlement must invalidate the holdings cache entry")
	}
	h, err := cs.GetHoldings(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 1 || !h[0].Quantity.Equal(d(5)) {
		t.Errorf("expected settled holding of 5 AAPL, got %v", h)
	}
}

func TestCachedStore_WatchlistReadThrough(t *testing.T) {
	cs, ms, mr, ctx := newCachedStore(t)

	if err := cs.AddWatch(ctx, "u1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	symbols, err := cs.GetWatchlist(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Fatalf("expected [AAPL], got %v", symbols)
	}
	if !mr.Exists(watchKey("u1")) {
		t.Fatal("expected watchlist cache entry after read")
	}

	// Second read is served from Redis even if the primary changed
	// underneath; a write through the cached store invalidates.
	if err := ms.AddWatch(ctx, "u1", "MSFT"); err != nil {
		t.Fatal(err)
	}
	symbols, _ = cs.GetWatchlist(ctx, "u1")
	if len(symbols) != 1 {
		t.Fatalf("expected cached [AAPL], got %v", symbols)
	}
	if err := cs.RemoveWatch(ctx, "u1", "MSFT"); err != nil {
		t.Fatal(err)
	}
	symbols, _ = cs.GetWatchlist(ctx, "u1")
	if len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Fatalf("expected fresh [AAPL], got %v", symbols)
	}
}

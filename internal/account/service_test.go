package account

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/market"
	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *market.StaticSource) {
	t.Helper()
	ms := store.NewMemoryStore()
	src := market.NewStaticSource()
	return NewService(ms, src), ms, src
}

func seedUser(t *testing.T, ms *store.MemoryStore, id string, cash float64) {
	t.Helper()
	err := ms.CreateUser(context.Background(), &model.User{
		ID: id, Username: id, CashBalance: d(cash), CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	u, err := svc.CreateUser(context.Background(), "alice", "Alice", "s3cret", d(5000))
	if err != nil {
		t.Fatal(err)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
	if !u.CashBalance.Equal(d(5000)) {
		t.Errorf("expected opening cash 5000, got %s", u.CashBalance)
	}

	if _, err := svc.CreateUser(context.Background(), "", "x", "s", d(0)); err == nil {
		t.Error("empty username must be rejected")
	}
	if _, err := svc.CreateUser(context.Background(), "bob", "Bob", "s", d(-1)); err == nil {
		t.Error("negative opening cash must be rejected")
	}
	if _, err := svc.CreateUser(context.Background(), "alice", "Dup", "s", d(0)); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate username: expected ErrConflict, got %v", err)
	}
}

func TestWatchlist_Idempotent(t *testing.T) {
	svc, ms, _ := newTestService(t)
	seedUser(t, ms, "u1", 0)
	ctx := context.Background()

	// Adding twice leaves exactly one entry.
	if err := svc.AddToWatchlist(ctx, "u1", "aapl"); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddToWatchlist(ctx, "u1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	wl, _ := svc.Watchlist(ctx, "u1")
	if len(wl) != 1 || wl[0] != "AAPL" {
		t.Errorf("expected [AAPL], got %v", wl)
	}

	// Removing an absent symbol is not an error.
	if err := svc.RemoveFromWatchlist(ctx, "u1", "MSFT"); err != nil {
		t.Errorf("removing absent symbol must be a no-op: %v", err)
	}
	if err := svc.RemoveFromWatchlist(ctx, "u1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	wl, _ = svc.Watchlist(ctx, "u1")
	if len(wl) != 0 {
		t.Errorf("expected empty watchlist, got %v", wl)
	}

	if err := svc.AddToWatchlist(ctx, "ghost", "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
}

func TestPortfolioValue(t *testing.T) {
	holdings := []model.Holding{
		{UserID: "u", Symbol: "AAPL", Quantity: d(2), CostBasis: d(200)},
		{UserID: "u", Symbol: "BTC", Quantity: d(0.5), CostBasis: d(10000)},
	}
	prices := map[string]decimal.Decimal{"AAPL": d(150), "BTC": d(40000)}
	lookup := func(symbol string) (decimal.Decimal, error) {
		p, ok := prices[symbol]
		if !ok {
			return decimal.Zero, fmt.Errorf("no price for %s", symbol)
		}
		return p, nil
	}

	p := PortfolioValue("u", d(1000), holdings, lookup)

	// 1000 cash + 2×150 + 0.5×40000 = 21300
	if !p.TotalValue.Equal(d(21300)) {
		t.Errorf("expected total 21300, got %s", p.TotalValue)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(p.Positions))
	}
	if !p.Positions[0].Priced || !p.Positions[0].MarketValue.Equal(d(300)) {
		t.Errorf("AAPL position wrong: %+v", p.Positions[0])
	}

	// The inputs are not mutated.
	if !holdings[0].Quantity.Equal(d(2)) {
		t.Error("PortfolioValue must not mutate holdings")
	}
}

func TestPortfolioValue_UnpricedDegradation(t *testing.T) {
	holdings := []model.Holding{
		{UserID: "u", Symbol: "AAPL", Quantity: d(2), CostBasis: d(200)},
		{UserID: "u", Symbol: "GHOST", Quantity: d(5), CostBasis: d(50)},
	}
	lookup := func(symbol string) (decimal.Decimal, error) {
		if symbol == "AAPL" {
			return d(100), nil
		}
		return decimal.Zero, market.ErrDataUnavailable
	}

	p := PortfolioValue("u", d(10), holdings, lookup)

	// Unpriced holdings are listed but contribute zero value.
	if !p.TotalValue.Equal(d(210)) {
		t.Errorf("expected total 210, got %s", p.TotalValue)
	}
	if len(p.Positions) != 2 {
		t.Fatalf("expected both positions listed, got %d", len(p.Positions))
	}
	unpriced := p.Positions[1]
	if unpriced.Priced || !unpriced.MarketValue.IsZero() {
		t.Errorf("unpriced position must have zero market value: %+v", unpriced)
	}
	if !unpriced.Quantity.Equal(d(5)) {
		t.Errorf("unpriced position keeps its quantity, got %s", unpriced.Quantity)
	}
}

func TestExecute_BuySell(t *testing.T) {
	svc, ms, src := newTestService(t)
	seedUser(t, ms, "u1", 1000)
	src.SetPrice("AAPL", d(100))
	ctx := context.Background()

	// Buy 4 at 100: cash 1000→600, qty 4, cost 400.
	txn, err := svc.Execute(ctx, "u1", "AAPL", model.SideBuy, d(4))
	if err != nil {
		t.Fatal(err)
	}
	if !txn.Price.Equal(d(100)) {
		t.Errorf("expected execution at 100, got %s", txn.Price)
	}
	u, _ := ms.GetUser(ctx, "u1")
	if !u.CashBalance.Equal(d(600)) {
		t.Errorf("expected cash 600, got %s", u.CashBalance)
	}

	// Sell 1 at 200: cash 600→800, qty 3, cost reduced at average (400/4).
	src.SetPrice("AAPL", d(200))
	if _, err := svc.Execute(ctx, "u1", "AAPL", model.SideSell, d(1)); err != nil {
		t.Fatal(err)
	}
	u, _ = ms.GetUser(ctx, "u1")
	if !u.CashBalance.Equal(d(800)) {
		t.Errorf("expected cash 800, got %s", u.CashBalance)
	}
	hs, _ := ms.GetHoldings(ctx, "u1")
	if len(hs) != 1 || !hs[0].Quantity.Equal(d(3)) {
		t.Fatalf("expected quantity 3, got %+v", hs)
	}
	if !hs[0].CostBasis.Equal(d(300)) {
		t.Errorf("expected cost basis 300 after average-cost reduction, got %s", hs[0].CostBasis)
	}

	txns, _ := svc.Transactions(ctx, "u1")
	if len(txns) != 2 {
		t.Errorf("expected 2 transactions, got %d", len(txns))
	}
}

func TestExecute_Rejections(t *testing.T) {
	svc, ms, src := newTestService(t)
	seedUser(t, ms, "u1", 100)
	src.SetPrice("AAPL", d(100))
	ctx := context.Background()

	if _, err := svc.Execute(ctx, "u1", "AAPL", "short", d(1)); !errors.Is(err, ErrInvalidTrade) {
		t.Errorf("bad side: expected ErrInvalidTrade, got %v", err)
	}
	if _, err := svc.Execute(ctx, "u1", "AAPL", model.SideBuy, d(0)); !errors.Is(err, ErrInvalidTrade) {
		t.Errorf("zero quantity: expected ErrInvalidTrade, got %v", err)
	}

	// Buying more than cash allows fails atomically.
	if _, err := svc.Execute(ctx, "u1", "AAPL", model.SideBuy, d(2)); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	u, _ := ms.GetUser(ctx, "u1")
	if !u.CashBalance.Equal(d(100)) {
		t.Error("failed buy must not touch the balance")
	}

	// Selling without a holding fails.
	if _, err := svc.Execute(ctx, "u1", "MSFT", model.SideSell, d(1)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing holding, got %v", err)
	}

	// Overselling an existing holding fails.
	if _, err := svc.Execute(ctx, "u1", "AAPL", model.SideBuy, d(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Execute(ctx, "u1", "AAPL", model.SideSell, d(2)); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds for oversell, got %v", err)
	}

	// Quote failure propagates as market data unavailability.
	if _, err := svc.Execute(ctx, "u1", "TSLA", model.SideBuy, d(1)); !errors.Is(err, market.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

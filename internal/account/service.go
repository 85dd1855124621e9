// Package account covers the thin user surface around the ledger: account
// creation, watchlists, portfolio valuation, and direct (non-collaborative)
// transactions.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/asset"
	"github.com/poolvest/ledger/internal/market"
	"github.com/poolvest/ledger/internal/metrics"
	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

// ErrInvalidTrade is returned for malformed trade parameters.
var ErrInvalidTrade = errors.New("account: invalid trade")

// Service implements the account operations over the store and the
// market data source.
type Service struct {
	store  store.Store
	source market.Source
}

// NewService creates an account service.
func NewService(st store.Store, source market.Source) *Service {
	return &Service{store: st, source: source}
}

// CreateUser registers a new user with an opening cash balance.
func (s *Service) CreateUser(ctx context.Context, username, displayName, secret string, openingCash decimal.Decimal) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("account: username is required")
	}
	if openingCash.IsNegative() {
		return nil, fmt.Errorf("account: opening cash must be non-negative")
	}

	u := &model.User{
		ID:          uuid.New().String(),
		Username:    username,
		DisplayName: displayName,
		Secret:      secret,
		CashBalance: openingCash,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	slog.Info("user created", "id", u.ID, "username", username)
	return u, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.store.GetUser(ctx, id)
}

// AddToWatchlist adds a symbol to the user's watchlist. Idempotent:
// duplicate adds are not an error and leave exactly one entry.
func (s *Service) AddToWatchlist(ctx context.Context, userID, symbol string) error {
	a, err := asset.Parse(symbol)
	if err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.store.AddWatch(ctx, userID, a.Symbol)
}

// RemoveFromWatchlist removes a symbol. Idempotent: removing a symbol
// that is not present is not an error.
func (s *Service) RemoveFromWatchlist(ctx context.Context, userID, symbol string) error {
	a, err := asset.Parse(symbol)
	if err != nil {
		return err
	}
	return s.store.RemoveWatch(ctx, userID, a.Symbol)
}

// Watchlist returns the user's watched symbols.
func (s *Service) Watchlist(ctx context.Context, userID string) ([]string, error) {
	return s.store.GetWatchlist(ctx, userID)
}

// PriceLookup resolves a symbol to its current price.
type PriceLookup func(symbol string) (decimal.Decimal, error)

// PortfolioValue is a pure function over holdings and a price lookup:
// Σ quantity × price per holding, plus cash. It mutates nothing. A
// holding whose price lookup fails is included unpriced with zero market
// value; it is never valued with stale data.
func PortfolioValue(userID string, cash decimal.Decimal, holdings []model.Holding, lookup PriceLookup) model.Portfolio {
	p := model.Portfolio{
		UserID:    userID,
		Cash:      cash,
		Positions: make([]model.PortfolioPosition, 0, len(holdings)),
	}

	total := cash
	for _, h := range holdings {
		pos := model.PortfolioPosition{
			Symbol:    h.Symbol,
			Quantity:  h.Quantity,
			CostBasis: h.CostBasis,
		}
		if price, err := lookup(h.Symbol); err == nil {
			pos.Price = price
			pos.MarketValue = h.Quantity.Mul(price)
			pos.Priced = true
			total = total.Add(pos.MarketValue)
		}
		p.Positions = append(p.Positions, pos)
	}
	p.TotalValue = total
	return p
}

// Portfolio values a user's holdings against the market data source.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := PortfolioValue(userID, u.CashBalance, holdings, func(symbol string) (decimal.Decimal, error) {
		return s.source.Quote(ctx, symbol)
	})
	return &p, nil
}

// Execute records a direct buy or sell at the current market quote.
// Buys debit cash; sells credit cash and reduce the holding's cost basis
// proportionally at average cost.
func (s *Service) Execute(ctx context.Context, userID, symbol, side string, quantity decimal.Decimal) (*model.Transaction, error) {
	if side != model.SideBuy && side != model.SideSell {
		return nil, fmt.Errorf("%w: side must be buy or sell", ErrInvalidTrade)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidTrade)
	}
	a, err := asset.Parse(symbol)
	if err != nil {
		return nil, err
	}

	price, err := s.source.Quote(ctx, a.Symbol)
	if err != nil {
		return nil, err
	}
	gross := quantity.Mul(price)

	var cashDelta, qtyDelta, costDelta decimal.Decimal
	if side == model.SideBuy {
		cashDelta = gross.Neg()
		qtyDelta = quantity
		costDelta = gross
	} else {
		holding, err := s.holdingFor(ctx, userID, a.Symbol)
		if err != nil {
			return nil, err
		}
		if holding.Quantity.LessThan(quantity) {
			return nil, fmt.Errorf("%w: holding %s/%s", store.ErrInsufficientFunds, userID, a.Symbol)
		}
		cashDelta = gross
		qtyDelta = quantity.Neg()
		// Reduce cost basis at average cost so the remainder keeps its basis.
		avgCost := holding.CostBasis.Div(holding.Quantity)
		costDelta = avgCost.Mul(quantity).Neg()
	}

	txn := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    a.Symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.ApplyTrade(ctx, txn, cashDelta, qtyDelta, costDelta); err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(side).Inc()
	slog.Info("trade executed",
		"txn", txn.ID,
		"user", userID,
		"symbol", a.Symbol,
		"side", side,
		"qty", quantity.String(),
		"price", price.String(),
	)
	return txn, nil
}

// Transactions returns the user's immutable transaction history.
func (s *Service) Transactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.store.GetTransactionsByUser(ctx, userID)
}

func (s *Service) holdingFor(ctx context.Context, userID, symbol string) (*model.Holding, error) {
	holdings, err := s.store.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range holdings {
		if holdings[i].Symbol == symbol {
			return &holdings[i], nil
		}
	}
	return nil, fmt.Errorf("%w: holding %s/%s", store.ErrNotFound, userID, symbol)
}

// Package model defines the core domain types shared across the ledger service.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request status values. State machine: open → funded → settled, with
// cancelled reachable from open and funded. settled and cancelled are
// terminal.
const (
	StatusOpen      = "open"
	StatusFunded    = "funded"
	StatusSettled   = "settled"
	StatusCancelled = "cancelled"
)

// Transaction sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Asset classes.
const (
	ClassEquity = "equity"
	ClassCrypto = "crypto"
)

// User is a platform account with a virtual cash balance.
type User struct {
	ID          string          `json:"id" db:"id"`
	Username    string          `json:"username" db:"username"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Secret      string          `json:"-" db:"secret"`
	CashBalance decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Holding is a user's owned quantity of one asset with its cost basis.
type Holding struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis" db:"cost_basis"`
}

// Transaction is an immutable record of an executed trade.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Side      string          `json:"side" db:"side"` // "buy" or "sell"
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"` // execution price
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// CollaborativeRequest is a shared funding goal for purchasing one asset,
// created by an initiator and open to contributions from other users.
// Terminal requests are retained for audit, never deleted.
type CollaborativeRequest struct {
	ID           string          `json:"id" db:"id"`
	InitiatorID  string          `json:"initiator_id" db:"initiator_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	TargetAmount decimal.Decimal `json:"target_amount" db:"target_amount"`
	FundedAmount decimal.Decimal `json:"funded_amount" db:"funded_amount"`
	Status       string          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Terminal reports whether the request can no longer change state.
func (r *CollaborativeRequest) Terminal() bool {
	return r.Status == StatusSettled || r.Status == StatusCancelled
}

// Contribution is an immutable record of one user's committed amount
// toward a collaborative request. Insertion order is arrival order.
type Contribution struct {
	ID        string          `json:"id" db:"id"`
	RequestID string          `json:"request_id" db:"request_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Candle is one OHLCV bar from the market data source.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// PortfolioPosition is one valued holding inside a portfolio view.
type PortfolioPosition struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	Priced      bool            `json:"priced"` // false when no quote was available
}

// Portfolio aggregates a user's valued holdings plus cash.
type Portfolio struct {
	UserID     string              `json:"user_id"`
	Cash       decimal.Decimal     `json:"cash"`
	Positions  []PortfolioPosition `json:"positions"`
	TotalValue decimal.Decimal     `json:"total_value"`
}

// Package store defines the persistence interface for the ledger service.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrInsufficientFunds is returned when a balance mutation would
	// drive a user's cash balance negative.
	ErrInsufficientFunds = errors.New("store: insufficient funds")

	// ErrConflict is returned on unique-key violations (duplicate user,
	// duplicate request id).
	ErrConflict = errors.New("store: record already exists")
)

// Refund credits one contributor's balance during cancellation.
type Refund struct {
	UserID string
	Amount decimal.Decimal
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// The Apply* operations are the mutually-exclusive write paths of the
// ledger state machine. Each must be atomic: every row change lands or
// none do, and the error is surfaced before any partial state is visible.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// --- Collaborative requests ---

	// CreateRequest persists a new request in its initial state.
	CreateRequest(ctx context.Context, r *model.CollaborativeRequest) error

	// GetRequest retrieves a request by ID.
	GetRequest(ctx context.Context, id string) (*model.CollaborativeRequest, error)

	// ListRequestsByParticipant returns every request where the user is
	// the initiator or a recorded contributor, ordered by creation time
	// ascending with ties broken by request ID.
	ListRequestsByParticipant(ctx context.Context, userID string) ([]model.CollaborativeRequest, error)

	// GetContributions returns a request's contributions in arrival order.
	GetContributions(ctx context.Context, requestID string) ([]model.Contribution, error)

	// ApplyContribution atomically debits the contributor's balance,
	// appends the contribution record, adds its amount to the request's
	// funded amount, and sets the request status to newStatus. Fails with
	// ErrConflict unless the request is open, so a stale caller read can
	// never corrupt the state machine.
	ApplyContribution(ctx context.Context, c *model.Contribution, newStatus string) error

	// ApplySettlement atomically upserts the holding increments, appends
	// the buy transactions, and marks the request settled. Fails with
	// ErrConflict unless the request is funded.
	// Holding quantities and cost bases are increments, not absolutes.
	ApplySettlement(ctx context.Context, requestID string, holdings []model.Holding, txns []model.Transaction) error

	// ApplyCancellation atomically credits every refund and marks the
	// request cancelled. Fails with ErrConflict unless the request is
	// open or funded. If any refund target is missing, no balance
	// changes and the request keeps its prior status.
	ApplyCancellation(ctx context.Context, requestID string, refunds []Refund) error

	// --- Holdings & transactions ---

	// GetHoldings returns a user's holdings.
	GetHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// GetTransactionsByUser returns a user's immutable transaction records
	// in timestamp order.
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// ApplyTrade atomically appends a transaction, applies cashDelta to
	// the user's balance, and applies qtyDelta/costDelta to the
	// (user, symbol) holding. Negative resulting balance or quantity
	// fails the whole operation.
	ApplyTrade(ctx context.Context, txn *model.Transaction, cashDelta, qtyDelta, costDelta decimal.Decimal) error

	// --- Watchlist ---

	// AddWatch adds a symbol to a user's watchlist. Idempotent.
	AddWatch(ctx context.Context, userID, symbol string) error

	// RemoveWatch removes a symbol from a user's watchlist. Idempotent.
	RemoveWatch(ctx context.Context, userID, symbol string) error

	// GetWatchlist returns a user's watched symbols, sorted.
	GetWatchlist(ctx context.Context, userID string) ([]string, error)
}

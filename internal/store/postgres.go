package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// The Apply* operations run inside a single database transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// mapPgError converts driver errors to store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, display_name, secret, cash_balance, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		u.ID, u.Username, u.DisplayName, u.Secret, u.CashBalance.String(), u.CreatedAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUserWhere(ctx, "username = $1", username)
}

func (s *PostgresStore) getUserWhere(ctx context.Context, where, arg string) (*model.User, error) {
	var u model.User
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT id, username, display_name, secret, cash_balance::TEXT, created_at
		 FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Secret, &balance, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", arg, mapPgError(err))
	}

	u.CashBalance, _ = decimal.NewFromString(balance)
	return &u, nil
}

// --- Collaborative requests ---

func (s *PostgresStore) CreateRequest(ctx context.Context, r *model.CollaborativeRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collaborative_requests (id, initiator_id, symbol, target_amount, funded_amount, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
		r.ID, r.InitiatorID, r.Symbol,
		r.TargetAmount.String(), r.FundedAmount.String(),
		r.Status, r.CreatedAt,
	)
	return mapPgError(err)
}

const requestColumns = `id, initiator_id, symbol, target_amount::TEXT, funded_amount::TEXT, status, created_at`

func scanRequest(row pgx.Row) (*model.CollaborativeRequest, error) {
	var r model.CollaborativeRequest
	var target, funded string

	if err := row.Scan(&r.ID, &r.InitiatorID, &r.Symbol, &target, &funded, &r.Status, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.TargetAmount, _ = decimal.NewFromString(target)
	r.FundedAmount, _ = decimal.NewFromString(funded)
	return &r, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.CollaborativeRequest, error) {
	r, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM collaborative_requests WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, mapPgError(err))
	}
	return r, nil
}

func (s *PostgresStore) ListRequestsByParticipant(ctx context.Context, userID string) ([]model.CollaborativeRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT `+requestColumns+`
		 FROM collaborative_requests r
		 WHERE r.initiator_id = $1
		    OR EXISTS (SELECT 1 FROM contributions c WHERE c.request_id = r.id AND c.user_id = $1)
		 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []model.CollaborativeRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

func (s *PostgresStore) GetContributions(ctx context.Context, requestID string) ([]model.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, user_id, amount::TEXT, timestamp
		 FROM contributions WHERE request_id = $1 ORDER BY seq`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []model.Contribution
	for rows.Next() {
		var c model.Contribution
		var amount string
		if err := rows.Scan(&c.ID, &c.RequestID, &c.UserID, &amount, &c.Timestamp); err != nil {
			return nil, err
		}
		c.Amount, _ = decimal.NewFromString(amount)
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

// --- Atomic apply operations ---

// withTx runs fn inside a transaction, rolling back on error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// debitUser subtracts amount from a user's balance inside tx, failing with
// ErrInsufficientFunds if the balance would go negative.
func debitUser(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET cash_balance = cash_balance - $2::NUMERIC
		 WHERE id = $1 AND cash_balance >= $2::NUMERIC`,
		userID, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, userID)
	}
	return nil
}

// creditUser adds amount to a user's balance inside tx.
func creditUser(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET cash_balance = cash_balance + $2::NUMERIC WHERE id = $1`,
		userID, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

// upsertHolding applies quantity/cost increments to the (user, symbol)
// holding inside tx, creating the row on first touch.
func upsertHolding(ctx context.Context, tx pgx.Tx, userID, symbol string, qtyDelta, costDelta decimal.Decimal) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO holdings (user_id, symbol, quantity, cost_basis)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		 ON CONFLICT (user_id, symbol) DO UPDATE
		 SET quantity = holdings.quantity + EXCLUDED.quantity,
		     cost_basis = holdings.cost_basis + EXCLUDED.cost_basis`,
		userID, symbol, qtyDelta.String(), costDelta.String())
	return err
}

// insertTransaction appends an immutable transaction record inside tx.
func insertTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, side, quantity, price, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
		t.ID, t.UserID, t.Symbol, t.Side,
		t.Quantity.String(), t.Price.String(), t.Timestamp)
	return err
}

func (s *PostgresStore) ApplyContribution(ctx context.Context, c *model.Contribution, newStatus string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := debitUser(ctx, tx, c.UserID, c.Amount); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO contributions (id, request_id, user_id, amount, timestamp)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
			c.ID, c.RequestID, c.UserID, c.Amount.String(), c.Timestamp); err != nil {
			return mapPgError(err)
		}

		// The status predicate makes the store enforce the legal
		// transition even if the caller read a stale snapshot.
		tag, err := tx.Exec(ctx,
			`UPDATE collaborative_requests
			 SET funded_amount = funded_amount + $2::NUMERIC, status = $3
			 WHERE id = $1 AND status = $4`,
			c.RequestID, c.Amount.String(), newStatus, model.StatusOpen)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return requestTransitionError(ctx, tx, c.RequestID)
		}
		return nil
	})
}

// requestTransitionError disambiguates a guarded status update that
// matched no row: the request is either missing or not in the expected
// state.
func requestTransitionError(ctx context.Context, tx pgx.Tx, requestID string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM collaborative_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
	}
	return fmt.Errorf("%w: request %s not in expected state", ErrConflict, requestID)
}

func (s *PostgresStore) ApplySettlement(ctx context.Context, requestID string, holdings []model.Holding, txns []model.Transaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, h := range holdings {
			if err := upsertHolding(ctx, tx, h.UserID, h.Symbol, h.Quantity, h.CostBasis); err != nil {
				return mapPgError(err)
			}
		}
		for i := range txns {
			if err := insertTransaction(ctx, tx, &txns[i]); err != nil {
				return mapPgError(err)
			}
		}

		// Settlement is legal only from funded.
		tag, err := tx.Exec(ctx,
			`UPDATE collaborative_requests SET status = $2 WHERE id = $1 AND status = $3`,
			requestID, model.StatusSettled, model.StatusFunded)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return requestTransitionError(ctx, tx, requestID)
		}
		return nil
	})
}

func (s *PostgresStore) ApplyCancellation(ctx context.Context, requestID string, refunds []Refund) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, ref := range refunds {
			if err := creditUser(ctx, tx, ref.UserID, ref.Amount); err != nil {
				return err
			}
		}

		// Cancellation is legal only from open or funded.
		tag, err := tx.Exec(ctx,
			`UPDATE collaborative_requests SET status = $2 WHERE id = $1 AND status IN ($3, $4)`,
			requestID, model.StatusCancelled, model.StatusOpen, model.StatusFunded)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return requestTransitionError(ctx, tx, requestID)
		}
		return nil
	})
}

// --- Holdings & transactions ---

func (s *PostgresStore) GetHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, cost_basis::TEXT
		 FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var qty, cost string
		if err := rows.Scan(&h.UserID, &h.Symbol, &qty, &cost); err != nil {
			return nil, err
		}
		h.Quantity, _ = decimal.NewFromString(qty)
		h.CostBasis, _ = decimal.NewFromString(cost)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side, quantity::TEXT, price::TEXT, timestamp
		 FROM transactions WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var qty, price string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &qty, &price, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qty)
		t.Price, _ = decimal.NewFromString(price)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) ApplyTrade(ctx context.Context, txn *model.Transaction, cashDelta, qtyDelta, costDelta decimal.Decimal) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if cashDelta.IsNegative() {
			if err := debitUser(ctx, tx, txn.UserID, cashDelta.Neg()); err != nil {
				return err
			}
		} else if err := creditUser(ctx, tx, txn.UserID, cashDelta); err != nil {
			return err
		}

		if err := upsertHolding(ctx, tx, txn.UserID, txn.Symbol, qtyDelta, costDelta); err != nil {
			return mapPgError(err)
		}

		// Selling more than held violates the holdings quantity check.
		var negative bool
		if err := tx.QueryRow(ctx,
			`SELECT quantity < 0 FROM holdings WHERE user_id = $1 AND symbol = $2`,
			txn.UserID, txn.Symbol).Scan(&negative); err != nil {
			return mapPgError(err)
		}
		if negative {
			return fmt.Errorf("%w: holding %s/%s", ErrInsufficientFunds, txn.UserID, txn.Symbol)
		}

		return mapPgError(insertTransaction(ctx, tx, txn))
	})
}

// --- Watchlist ---

func (s *PostgresStore) AddWatch(ctx context.Context, userID, symbol string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO watchlists (user_id, symbol) VALUES ($1, $2)
		 ON CONFLICT (user_id, symbol) DO NOTHING`,
		userID, symbol)
	return err
}

func (s *PostgresStore) RemoveWatch(ctx context.Context, userID, symbol string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM watchlists WHERE user_id = $1 AND symbol = $2`,
		userID, symbol)
	return err
}

func (s *PostgresStore) GetWatchlist(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol FROM watchlists WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

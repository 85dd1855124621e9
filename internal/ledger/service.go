// Package ledger implements the collaborative investment contribution
// ledger: the state machine that keeps amounts, shares and statuses
// consistent while multiple users fund a shared investment request.
//
// All monetary values use shopspring/decimal, never float64.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/asset"
	"github.com/poolvest/ledger/internal/limits"
	"github.com/poolvest/ledger/internal/market"
	"github.com/poolvest/ledger/internal/metrics"
	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

// DefaultSettleTimeout bounds the market-data fetch during settlement.
// On expiry settlement fails without mutating state.
const DefaultSettleTimeout = 5 * time.Second

// Service owns the collaborative request state machine. Concurrent
// operations against one request serialize on a per-request lock;
// different requests proceed in parallel.
type Service struct {
	store         store.Store
	source        market.Source
	limiter       *limits.ContributionLimiter
	hub           *Hub // optional notification hub for UI fanout
	locks         *lockTable
	settleTimeout time.Duration
}

// NewService creates a ledger service. Pass nil for hub if event
// broadcasting is not needed.
func NewService(st store.Store, source market.Source, limiter *limits.ContributionLimiter, hub *Hub) *Service {
	if limiter == nil {
		limiter = limits.NewContributionLimiter(decimal.Zero, decimal.Zero)
	}
	return &Service{
		store:         st,
		source:        source,
		limiter:       limiter,
		hub:           hub,
		locks:         newLockTable(),
		settleTimeout: DefaultSettleTimeout,
	}
}

// SetSettleTimeout overrides the settlement market-data deadline.
func (s *Service) SetSettleTimeout(d time.Duration) {
	s.settleTimeout = d
}

// CreateRequest opens a new collaborative request in the open state.
// No balance is touched until the first contribution.
func (s *Service) CreateRequest(ctx context.Context, initiatorID, symbol string, target decimal.Decimal) (*model.CollaborativeRequest, error) {
	if target.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: target %s", ErrInvalidAmount, target)
	}
	a, err := asset.Parse(symbol)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, initiatorID); err != nil {
		return nil, mapStoreError(err)
	}

	r := &model.CollaborativeRequest{
		ID:           uuid.New().String(),
		InitiatorID:  initiatorID,
		Symbol:       a.Symbol,
		TargetAmount: target,
		FundedAmount: decimal.Zero,
		Status:       model.StatusOpen,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, mapStoreError(err)
	}

	metrics.RequestsCreated.Inc()
	slog.Info("request created",
		"id", r.ID,
		"initiator", initiatorID,
		"symbol", a.Symbol,
		"target", target.String(),
	)
	return r, nil
}

// GetRequest returns a request with its contributions.
func (s *Service) GetRequest(ctx context.Context, id string) (*model.CollaborativeRequest, []model.Contribution, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	contribs, err := s.store.GetContributions(ctx, id)
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	return r, contribs, nil
}

// Contribute records one user's committed amount toward a request.
// The debit, the contribution record and any open→funded transition land
// atomically. Reaching the target exactly transitions the request to
// funded as a side effect of this call.
func (s *Service) Contribute(ctx context.Context, requestID, userID string, amount decimal.Decimal) (*model.CollaborativeRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: contribution %s", ErrInvalidAmount, amount)
	}

	s.locks.lock(requestID)
	defer s.locks.unlock(requestID)

	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if r.Status != model.StatusOpen {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidState, requestID, r.Status)
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if u.CashBalance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s < %s", ErrInsufficientFunds, u.CashBalance, amount)
	}

	// Over-funding is rejected outright, never clamped.
	newFunded := r.FundedAmount.Add(amount)
	if newFunded.GreaterThan(r.TargetAmount) {
		return nil, fmt.Errorf("%w: %s + %s > target %s",
			ErrOverfundingRejected, r.FundedAmount, amount, r.TargetAmount)
	}

	open, err := s.openContributions(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if err := s.limiter.Check(requestID, amount, open); err != nil {
		metrics.LimitRejections.Inc()
		return nil, err
	}

	newStatus := model.StatusOpen
	if newFunded.Equal(r.TargetAmount) {
		newStatus = model.StatusFunded
	}

	c := &model.Contribution{
		ID:        uuid.New().String(),
		RequestID: requestID,
		UserID:    userID,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.ApplyContribution(ctx, c, newStatus); err != nil {
		return nil, mapStoreError(err)
	}

	r.FundedAmount = newFunded
	r.Status = newStatus

	metrics.ContributionsTotal.Inc()
	slog.Info("contribution recorded",
		"request", requestID,
		"user", userID,
		"amount", amount.String(),
		"funded", newFunded.String(),
		"status", newStatus,
	)

	s.broadcast(Event{Type: EventContribution, RequestID: requestID, Symbol: r.Symbol,
		Status: newStatus, Amount: amount.String(), Funded: newFunded.String()})
	if newStatus == model.StatusFunded {
		metrics.RequestsFunded.Inc()
		s.broadcast(Event{Type: EventFunded, RequestID: requestID, Symbol: r.Symbol,
			Status: newStatus, Funded: newFunded.String()})
	}
	return r, nil
}

// Settle converts a fully-funded request into proportional holdings for
// every contributor, atomically. The execution price is fetched before
// entering the exclusive region, bounded by the settle timeout; on any
// failure the request stays funded and the error wraps the cause.
func (s *Service) Settle(ctx context.Context, requestID string) (*model.CollaborativeRequest, error) {
	// Fast precondition read outside the lock; re-checked inside.
	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if r.Status != model.StatusFunded {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidState, requestID, r.Status)
	}

	// Market-data fetch stays outside the exclusive region so a slow
	// upstream cannot stall contributions to other requests.
	quoteCtx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	price, err := s.source.Quote(quoteCtx, r.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: non-positive quote %s for %s", ErrSettlementFailed, price, r.Symbol)
	}

	s.locks.lock(requestID)
	defer s.locks.unlock(requestID)

	r, err = s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if r.Status != model.StatusFunded {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidState, requestID, r.Status)
	}

	contribs, err := s.store.GetContributions(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	// quantity purchased with the full target at the execution price;
	// each contributor's share is amount/target of that quantity.
	quantity := r.TargetAmount.Div(price)
	now := time.Now().UTC()

	holdings := make([]model.Holding, 0, len(contribs))
	txns := make([]model.Transaction, 0, len(contribs))
	for _, c := range contribs {
		share := c.Amount.Div(r.TargetAmount)
		qty := share.Mul(quantity)
		holdings = append(holdings, model.Holding{
			UserID:    c.UserID,
			Symbol:    r.Symbol,
			Quantity:  qty,
			CostBasis: c.Amount,
		})
		txns = append(txns, model.Transaction{
			ID:        uuid.New().String(),
			UserID:    c.UserID,
			Symbol:    r.Symbol,
			Side:      model.SideBuy,
			Quantity:  qty,
			Price:     price,
			Timestamp: now,
		})
	}

	if err := s.store.ApplySettlement(ctx, requestID, holdings, txns); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, mapStoreError(err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSettlementFailed, err)
	}

	r.Status = model.StatusSettled

	metrics.RequestsSettled.Inc()
	slog.Info("request settled",
		"request", requestID,
		"symbol", r.Symbol,
		"price", price.String(),
		"quantity", quantity.String(),
		"contributors", len(contribs),
	)

	s.broadcast(Event{Type: EventSettled, RequestID: requestID, Symbol: r.Symbol,
		Status: model.StatusSettled, Price: price.String()})
	return r, nil
}

// Cancel refunds every recorded contribution and marks the request
// cancelled. The refund is all-or-nothing: if any contributor record is
// missing, no balance changes and the request keeps its prior status.
func (s *Service) Cancel(ctx context.Context, requestID string) (*model.CollaborativeRequest, error) {
	s.locks.lock(requestID)
	defer s.locks.unlock(requestID)

	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if r.Status != model.StatusOpen && r.Status != model.StatusFunded {
		return nil, fmt.Errorf("%w: request %s is %s", ErrInvalidState, requestID, r.Status)
	}

	contribs, err := s.store.GetContributions(ctx, requestID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	// Each recorded contribution is refunded exactly once.
	refunds := make([]store.Refund, 0, len(contribs))
	for _, c := range contribs {
		refunds = append(refunds, store.Refund{UserID: c.UserID, Amount: c.Amount})
	}

	if err := s.store.ApplyCancellation(ctx, requestID, refunds); err != nil {
		return nil, mapStoreError(err)
	}

	r.Status = model.StatusCancelled

	metrics.RequestsCancelled.Inc()
	slog.Info("request cancelled",
		"request", requestID,
		"symbol", r.Symbol,
		"refunds", len(refunds),
	)

	s.broadcast(Event{Type: EventCancelled, RequestID: requestID, Symbol: r.Symbol,
		Status: model.StatusCancelled})
	return r, nil
}

// ListPending returns a restartable iterator over the requests where the
// user is initiator or contributor and the status is open or funded,
// ordered by creation time ascending with ties broken by request ID.
// Each iteration re-reads the store.
func (s *Service) ListPending(ctx context.Context, userID string) iter.Seq2[model.CollaborativeRequest, error] {
	return func(yield func(model.CollaborativeRequest, error) bool) {
		requests, err := s.store.ListRequestsByParticipant(ctx, userID)
		if err != nil {
			yield(model.CollaborativeRequest{}, mapStoreError(err))
			return
		}
		for _, r := range requests {
			if r.Status != model.StatusOpen && r.Status != model.StatusFunded {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// openContributions sums the user's contributions per non-terminal
// request, feeding the contribution limiter.
func (s *Service) openContributions(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	requests, err := s.store.ListRequestsByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}

	open := make(map[string]decimal.Decimal)
	for _, r := range requests {
		if r.Terminal() {
			continue
		}
		contribs, err := s.store.GetContributions(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range contribs {
			if c.UserID == userID {
				open[r.ID] = open[r.ID].Add(c.Amount)
			}
		}
	}
	return open, nil
}

func (s *Service) broadcast(ev Event) {
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

// mapStoreError translates store sentinels into the ledger taxonomy.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, store.ErrConflict):
		// A guarded transition matched no row: the request moved on
		// since it was read.
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	default:
		return err
	}
}

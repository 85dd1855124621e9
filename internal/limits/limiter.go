// Package limits enforces per-user contribution limits across
// collaborative requests.
//
// A user pledging into many open requests at once has correlated cash
// risk: every open contribution is locked until the request settles or
// is cancelled. This package caps both the pledge into any single
// request and the aggregate locked across all non-terminal requests.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerRequestLimitExceeded is returned when a contribution would push
	// a user's total into one request beyond the per-request maximum.
	ErrPerRequestLimitExceeded = errors.New("limits: per-request contribution limit exceeded")

	// ErrOpenTotalLimitExceeded is returned when a contribution would push
	// a user's aggregate open contributions beyond the total maximum.
	ErrOpenTotalLimitExceeded = errors.New("limits: open contribution total limit exceeded")
)

// ContributionLimiter enforces contribution limits per user.
//
// A zero limit disables the corresponding check, so a zero-value limiter
// permits everything.
type ContributionLimiter struct {
	// MaxPerRequest is the maximum one user may put into a single request.
	MaxPerRequest decimal.Decimal

	// MaxOpenTotal is the maximum a user may have locked across all
	// non-terminal (open or funded) requests combined.
	MaxOpenTotal decimal.Decimal
}

// NewContributionLimiter creates a limiter with the given per-request and
// aggregate limits. Zero disables a limit.
func NewContributionLimiter(maxPerRequest, maxOpenTotal decimal.Decimal) *ContributionLimiter {
	return &ContributionLimiter{
		MaxPerRequest: maxPerRequest,
		MaxOpenTotal:  maxOpenTotal,
	}
}

// Check validates whether a new contribution respects the limits.
//
// Parameters:
//   - targetRequest: ID of the request being contributed to
//   - amount: the new contribution amount
//   - openContributions: map of request ID → the user's existing total in
//     each non-terminal request
//
// Returns nil if the contribution is within limits, or an error naming
// the violated limit.
func (l *ContributionLimiter) Check(
	targetRequest string,
	amount decimal.Decimal,
	openContributions map[string]decimal.Decimal,
) error {
	// 1. Per-request limit.
	inRequest := openContributions[targetRequest].Add(amount)
	if l.MaxPerRequest.IsPositive() && inRequest.GreaterThan(l.MaxPerRequest) {
		return ErrPerRequestLimitExceeded
	}

	// 2. Aggregate across all non-terminal requests.
	if l.MaxOpenTotal.IsPositive() {
		total := inRequest
		for id, existing := range openContributions {
			if id == targetRequest {
				continue // already counted via inRequest above
			}
			total = total.Add(existing)
		}
		if total.GreaterThan(l.MaxOpenTotal) {
			return ErrOpenTotalLimitExceeded
		}
	}

	return nil
}

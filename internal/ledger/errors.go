package ledger

import "errors"

var (
	// ErrNotFound is returned when the request or user does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrInvalidState is returned when an operation is not legal for the
	// request's current status.
	ErrInvalidState = errors.New("ledger: operation not valid in current state")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInsufficientFunds is returned when the contributor's cash balance
	// cannot cover the contribution.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrOverfundingRejected is returned when a contribution would push the
	// funded amount past the target. Rejected outright, never clamped.
	ErrOverfundingRejected = errors.New("ledger: contribution would exceed target amount")

	// ErrSettlementFailed wraps the underlying cause when settlement cannot
	// complete. The request stays funded; the caller may retry.
	ErrSettlementFailed = errors.New("ledger: settlement failed")
)

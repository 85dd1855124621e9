// Package market provides the market data source client: spot quotes,
// OHLCV series, and news headlines for a symbol.
//
// Failures never substitute stale data: every lookup error is reported
// as ErrDataUnavailable and retrying is the caller's decision.
package market

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

// ErrDataUnavailable is returned when the upstream data source cannot be
// reached or has no data for the symbol.
var ErrDataUnavailable = errors.New("market: data unavailable")

// Source supplies price and headline data for asset symbols.
type Source interface {
	// Quote returns the current price of a symbol.
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Series returns OHLCV candles for the symbol between from and to,
	// ordered by timestamp ascending.
	Series(ctx context.Context, symbol string, from, to time.Time) ([]model.Candle, error)

	// Headlines returns recent news headlines for the symbol.
	Headlines(ctx context.Context, symbol string) ([]string, error)
}

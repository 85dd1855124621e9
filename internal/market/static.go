package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
)

// StaticSource implements Source from fixed in-memory data. Used for
// testing and development without network access.
type StaticSource struct {
	mu        sync.RWMutex
	prices    map[string]decimal.Decimal
	headlines map[string][]string
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		prices:    make(map[string]decimal.Decimal),
		headlines: make(map[string][]string),
	}
}

// SetPrice sets the quote for a symbol.
func (s *StaticSource) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetHeadlines sets the headlines for a symbol.
func (s *StaticSource) SetHeadlines(symbol string, headlines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headlines[symbol] = headlines
}

func (s *StaticSource) Quote(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, symbol)
	}
	return price, nil
}

// Series synthesizes flat candles at the configured price, one per day.
func (s *StaticSource) Series(_ context.Context, symbol string, from, to time.Time) ([]model.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no series for %s", ErrDataUnavailable, symbol)
	}

	var candles []model.Candle
	for ts := from; !ts.After(to); ts = ts.AddDate(0, 0, 1) {
		candles = append(candles, model.Candle{
			Timestamp: ts.UTC(),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    decimal.Zero,
		})
	}
	return candles, nil
}

func (s *StaticSource) Headlines(_ context.Context, symbol string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hs, ok := s.headlines[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no headlines for %s", ErrDataUnavailable, symbol)
	}
	return append([]string(nil), hs...), nil
}

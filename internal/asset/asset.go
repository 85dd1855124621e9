// Package asset handles asset symbol validation and asset-class detection.
// Symbols are reference keys only; no asset is owned by the platform.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/poolvest/ledger/internal/model"
)

var (
	ErrInvalidSymbol = errors.New("asset: invalid symbol format")
)

// symbolRegex matches 1-10 uppercase alphanumerics with optional single
// dot or dash separators, e.g. AAPL, BRK.B, BTC-USD.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,10}([.-][A-Z0-9]{1,10})?$`)

// knownCrypto maps crypto base symbols to their canonical names.
// Anything not listed here is classified as equity.
var knownCrypto = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"DOGE":  "dogecoin",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
}

// Asset is a parsed, classified symbol.
type Asset struct {
	Symbol string `json:"symbol"`
	Class  string `json:"class"` // "equity" or "crypto"
}

// Parse normalizes and validates a symbol, classifying it as equity or
// crypto. Input is trimmed and upper-cased before validation.
func Parse(symbol string) (*Asset, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRegex.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	class := model.ClassEquity
	base := s
	if i := strings.IndexAny(s, ".-"); i > 0 {
		base = s[:i]
	}
	if _, ok := knownCrypto[base]; ok {
		class = model.ClassCrypto
	}

	return &Asset{Symbol: s, Class: class}, nil
}

// CoinGeckoID returns the CoinGecko identifier for a crypto symbol,
// or "" if the symbol is not a known crypto asset.
func CoinGeckoID(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, ".-"); i > 0 {
		s = s[:i]
	}
	return knownCrypto[s]
}

package market

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/asset"
	"github.com/poolvest/ledger/internal/model"
)

// HTTPSource implements Source against public market data APIs:
// Yahoo Finance chart endpoints for equity quotes/candles/headlines,
// CoinGecko for crypto spot prices.
type HTTPSource struct {
	client       *http.Client
	chartBase    string // Yahoo chart API base
	simpleBase   string // CoinGecko simple price base
	headlineBase string // Yahoo RSS base
}

// NewHTTPSource creates a source with the default public endpoints.
func NewHTTPSource() *HTTPSource {
	return &HTTPSource{
		client:       &http.Client{Timeout: 10 * time.Second},
		chartBase:    "https://query2.finance.yahoo.com/v8/finance/chart",
		simpleBase:   "https://api.coingecko.com/api/v3/simple/price",
		headlineBase: "https://feeds.finance.yahoo.com/rss/2.0/headline",
	}
}

// NewHTTPSourceWith creates a source against custom endpoints (tests).
func NewHTTPSourceWith(client *http.Client, chartBase, simpleBase, headlineBase string) *HTTPSource {
	return &HTTPSource{
		client:       client,
		chartBase:    chartBase,
		simpleBase:   simpleBase,
		headlineBase: headlineBase,
	}
}

func (s *HTTPSource) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	a, err := asset.Parse(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if a.Class == model.ClassCrypto {
		return s.cryptoQuote(ctx, a.Symbol)
	}

	chart, err := s.fetchChart(ctx, a.Symbol, time.Now().AddDate(0, 0, -1), time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	price := chart.Meta.RegularMarketPrice
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, a.Symbol)
	}
	return decimal.NewFromFloat(price), nil
}

func (s *HTTPSource) Series(ctx context.Context, symbol string, from, to time.Time) ([]model.Candle, error) {
	a, err := asset.Parse(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	querySym := a.Symbol
	if a.Class == model.ClassCrypto && !strings.Contains(querySym, "-") {
		querySym += "-USD" // Yahoo lists crypto as pairs
	}

	chart, err := s.fetchChart(ctx, querySym, from, to)
	if err != nil {
		return nil, err
	}

	q := chart.Indicators.Quote
	if len(q) == 0 {
		return nil, fmt.Errorf("%w: no series for %s", ErrDataUnavailable, a.Symbol)
	}

	// Degenerate payloads can carry arrays of uneven length; only index
	// up to the shortest one.
	n := len(chart.Timestamps)
	for _, arr := range [][]float64{q[0].Open, q[0].High, q[0].Low, q[0].Close, q[0].Volume} {
		if len(arr) < n {
			n = len(arr)
		}
	}

	candles := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		if q[0].Close[i] == 0 {
			continue
		}
		candles = append(candles, model.Candle{
			Timestamp: time.Unix(chart.Timestamps[i], 0).UTC(),
			Open:      decimal.NewFromFloat(q[0].Open[i]),
			High:      decimal.NewFromFloat(q[0].High[i]),
			Low:       decimal.NewFromFloat(q[0].Low[i]),
			Close:     decimal.NewFromFloat(q[0].Close[i]),
			Volume:    decimal.NewFromFloat(q[0].Volume[i]),
		})
	}
	return candles, nil
}

func (s *HTTPSource) Headlines(ctx context.Context, symbol string) ([]string, error) {
	a, err := asset.Parse(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	endpoint := fmt.Sprintf("%s?s=%s&region=US&lang=en-US", s.headlineBase, url.QueryEscape(a.Symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch headlines: %v", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: headlines status %d", ErrDataUnavailable, resp.StatusCode)
	}

	var feed struct {
		Channel struct {
			Items []struct {
				Title string `xml:"title"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: decode headlines: %v", ErrDataUnavailable, err)
	}

	headlines := make([]string, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if t := strings.TrimSpace(item.Title); t != "" {
			headlines = append(headlines, t)
		}
	}
	return headlines, nil
}

// chartResult is the subset of the Yahoo chart payload we consume.
type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamps []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []float64 `json:"open"`
			High   []float64 `json:"high"`
			Low    []float64 `json:"low"`
			Close  []float64 `json:"close"`
			Volume []float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (s *HTTPSource) fetchChart(ctx context.Context, symbol string, from, to time.Time) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		s.chartBase, url.PathEscape(symbol), from.Unix(), to.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch chart %s: %v", ErrDataUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chart %s status %d", ErrDataUnavailable, symbol, resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []chartResult `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode chart %s: %v", ErrDataUnavailable, symbol, err)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: empty chart for %s", ErrDataUnavailable, symbol)
	}
	return &payload.Chart.Result[0], nil
}

func (s *HTTPSource) cryptoQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id := asset.CoinGeckoID(symbol)
	if id == "" {
		return decimal.Zero, fmt.Errorf("%w: unknown crypto %s", ErrDataUnavailable, symbol)
	}

	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", "usd")
	endpoint := s.simpleBase + "?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetch crypto quote %s: %v", ErrDataUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: crypto quote %s status %d", ErrDataUnavailable, symbol, resp.StatusCode)
	}

	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode crypto quote %s: %v", ErrDataUnavailable, symbol, err)
	}

	entry, ok := payload[id]
	if !ok || entry.USD <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no crypto quote for %s", ErrDataUnavailable, symbol)
	}
	return decimal.NewFromFloat(entry.USD), nil
}

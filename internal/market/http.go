package market

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poolvest/ledger/internal/sentiment"
)

// Handlers exposes the market data source over HTTP for the presentation
// layer: quotes, candle series, headlines, and headline sentiment.
type Handlers struct {
	source Source
}

// NewHandlers creates market data HTTP handlers over a source.
func NewHandlers(source Source) *Handlers {
	return &Handlers{source: source}
}

// HandleQuote handles GET /api/v1/assets/{symbol}/quote
func (h *Handlers) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	price, err := h.source.Quote(r.Context(), symbol)
	if err != nil {
		writeMarketError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"symbol": symbol, "price": price.String()})
}

// HandleSeries handles GET /api/v1/assets/{symbol}/series?from=...&to=...
// Dates are RFC 3339 or YYYY-MM-DD; the default range is the last 30 days.
func (h *Handlers) HandleSeries(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeError(w, "invalid from date", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeError(w, "invalid to date", http.StatusBadRequest)
			return
		}
		to = t
	}
	if to.Before(from) {
		writeError(w, "to must not precede from", http.StatusBadRequest)
		return
	}

	candles, err := h.source.Series(r.Context(), symbol, from, to)
	if err != nil {
		writeMarketError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(candles)
}

// HandleHeadlines handles GET /api/v1/assets/{symbol}/headlines
func (h *Handlers) HandleHeadlines(w http.ResponseWriter, r *http.Request) {
	headlines, err := h.source.Headlines(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeMarketError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(headlines)
}

// HandleSentiment handles GET /api/v1/assets/{symbol}/sentiment
// Fetches headlines and returns their VADER polarity summary.
func (h *Handlers) HandleSentiment(w http.ResponseWriter, r *http.Request) {
	headlines, err := h.source.Headlines(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeMarketError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sentiment.ScoreHeadlines(headlines))
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func writeMarketError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrDataUnavailable) {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeError(w, err.Error(), http.StatusInternalServerError)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

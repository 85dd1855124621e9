package market

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func newHandlerRouter(src Source) chi.Router {
	h := NewHandlers(src)
	r := chi.NewRouter()
	r.Get("/api/v1/assets/{symbol}/quote", h.HandleQuote)
	r.Get("/api/v1/assets/{symbol}/series", h.HandleSeries)
	r.Get("/api/v1/assets/{symbol}/headlines", h.HandleHeadlines)
	r.Get("/api/v1/assets/{symbol}/sentiment", h.HandleSentiment)
	return r
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleQuote(t *testing.T) {
	src := NewStaticSource()
	src.SetPrice("AAPL", decimal.NewFromFloat(187.5))
	router := newHandlerRouter(src)

	w := get(t, router, "/api/v1/assets/AAPL/quote")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["price"] != "187.5" {
		t.Errorf("expected price 187.5, got %q", body["price"])
	}

	// Unknown symbol surfaces as upstream unavailability.
	w = get(t, router, "/api/v1/assets/MSFT/quote")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestHandleSeries_DateValidation(t *testing.T) {
	src := NewStaticSource()
	src.SetPrice("AAPL", decimal.NewFromFloat(100))
	router := newHandlerRouter(src)

	w := get(t, router, "/api/v1/assets/AAPL/series?from=2026-01-01&to=2026-01-05")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var candles []json.RawMessage
	json.Unmarshal(w.Body.Bytes(), &candles)
	if len(candles) != 5 {
		t.Errorf("expected 5 daily candles, got %d", len(candles))
	}

	w = get(t, router, "/api/v1/assets/AAPL/series?from=garbage")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad from date: expected 400, got %d", w.Code)
	}
	w = get(t, router, "/api/v1/assets/AAPL/series?from=2026-02-01&to=2026-01-01")
	if w.Code != http.StatusBadRequest {
		t.Errorf("inverted range: expected 400, got %d", w.Code)
	}
}

func TestHandleSentiment(t *testing.T) {
	src := NewStaticSource()
	src.SetHeadlines("AAPL", []string{"Record profits delight investors"})
	router := newHandlerRouter(src)

	w := get(t, router, "/api/v1/assets/AAPL/sentiment")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Label    string  `json:"label"`
		Compound float64 `json:"compound"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Label != "positive" {
		t.Errorf("expected positive label, got %s (compound %f)", body.Label, body.Compound)
	}

	w = get(t, router, "/api/v1/assets/MSFT/sentiment")
	if w.Code != http.StatusBadGateway {
		t.Errorf("missing headlines: expected 502, got %d", w.Code)
	}
}

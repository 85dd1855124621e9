package account

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/poolvest/ledger/internal/model"
)

func newTestRouter(t *testing.T) (chi.Router, *Service) {
	t.Helper()
	svc, ms, src := newTestService(t)
	seedUser(t, ms, "u1", 1000)
	src.SetPrice("AAPL", d(100))

	r := chi.NewRouter()
	r.Post("/api/v1/users", svc.HandleCreateUser)
	r.Get("/api/v1/users/{userID}", svc.HandleGetUser)
	r.Get("/api/v1/users/{userID}/portfolio", svc.HandleGetPortfolio)
	r.Post("/api/v1/users/{userID}/trades", svc.HandleTrade)
	r.Get("/api/v1/users/{userID}/transactions", svc.HandleGetTransactions)
	r.Get("/api/v1/users/{userID}/watchlist", svc.HandleGetWatchlist)
	r.Post("/api/v1/users/{userID}/watchlist", svc.HandleAddWatch)
	r.Delete("/api/v1/users/{userID}/watchlist/{symbol}", svc.HandleRemoveWatch)
	return r, svc
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleCreateUser(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/users", CreateUserBody{
		Username: "bob", DisplayName: "Bob", Secret: "pw", OpeningCash: d(500),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var u model.User
	json.Unmarshal(w.Body.Bytes(), &u)
	if u.Username != "bob" || !u.CashBalance.Equal(d(500)) {
		t.Errorf("unexpected user: %+v", u)
	}

	// The secret never leaves the server.
	if bytes.Contains(w.Body.Bytes(), []byte(`"pw"`)) {
		t.Error("secret must not appear in the response")
	}

	w = doJSON(t, router, "POST", "/api/v1/users", CreateUserBody{
		Username: "bob", Secret: "pw",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate username: expected 409, got %d", w.Code)
	}
}

func TestHandleTradeAndPortfolio(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/users/u1/trades", TradeBody{
		Symbol: "AAPL", Side: model.SideBuy, Quantity: d(2),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/users/u1/portfolio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("portfolio: expected 200, got %d", w.Code)
	}
	var p model.Portfolio
	json.Unmarshal(w.Body.Bytes(), &p)
	// 800 cash + 2×100 = 1000.
	if !p.TotalValue.Equal(d(1000)) {
		t.Errorf("expected total 1000, got %s", p.TotalValue)
	}
	if len(p.Positions) != 1 || !p.Positions[0].Quantity.Equal(d(2)) {
		t.Errorf("unexpected positions: %+v", p.Positions)
	}

	w = doJSON(t, router, "GET", "/api/v1/users/u1/transactions", nil)
	var txns []model.Transaction
	json.Unmarshal(w.Body.Bytes(), &txns)
	if len(txns) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(txns))
	}

	// Unpriced trade symbol surfaces upstream unavailability.
	w = doJSON(t, router, "POST", "/api/v1/users/u1/trades", TradeBody{
		Symbol: "MSFT", Side: model.SideBuy, Quantity: d(1),
	})
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

func TestHandleWatchlist(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/users/u1/watchlist", WatchBody{Symbol: "btc"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/users/u1/watchlist", nil)
	var wl []string
	json.Unmarshal(w.Body.Bytes(), &wl)
	if len(wl) != 1 || wl[0] != "BTC" {
		t.Errorf("expected [BTC], got %v", wl)
	}

	w = doJSON(t, router, "DELETE", "/api/v1/users/u1/watchlist/BTC", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/users/ghost/watchlist", WatchBody{Symbol: "AAPL"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/users/u1/watchlist", WatchBody{Symbol: "bad symbol"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid symbol: expected 400, got %d", w.Code)
	}
}

package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/asset"
	"github.com/poolvest/ledger/internal/market"
	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

// CreateUserBody is the JSON body for POST /api/v1/users.
type CreateUserBody struct {
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	Secret      string          `json:"secret"`
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

// WatchBody is the JSON body for watchlist mutations.
type WatchBody struct {
	Symbol string `json:"symbol"`
}

// TradeBody is the JSON body for POST /api/v1/users/{userID}/trades.
type TradeBody struct {
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
}

// HandleCreateUser handles POST /api/v1/users
func (s *Service) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body CreateUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	u, err := s.CreateUser(r.Context(), body.Username, body.DisplayName, body.Secret, body.OpeningCash)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(u)
}

// HandleGetUser handles GET /api/v1/users/{userID}
func (s *Service) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u)
}

// HandleAddWatch handles POST /api/v1/users/{userID}/watchlist
func (s *Service) HandleAddWatch(w http.ResponseWriter, r *http.Request) {
	var body WatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.AddToWatchlist(r.Context(), chi.URLParam(r, "userID"), body.Symbol); err != nil {
		writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveWatch handles DELETE /api/v1/users/{userID}/watchlist/{symbol}
func (s *Service) HandleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	if err := s.RemoveFromWatchlist(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "symbol")); err != nil {
		writeAccountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetWatchlist handles GET /api/v1/users/{userID}/watchlist
func (s *Service) HandleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.Watchlist(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeAccountError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(symbols)
}

// HandleGetPortfolio handles GET /api/v1/users/{userID}/portfolio
func (s *Service) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

// HandleTrade handles POST /api/v1/users/{userID}/trades
func (s *Service) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var body TradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := s.Execute(r.Context(), chi.URLParam(r, "userID"), body.Symbol, body.Side, body.Quantity)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// HandleGetTransactions handles GET /api/v1/users/{userID}/transactions
func (s *Service) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.Transactions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeAccountError(w, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txns)
}

func writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, asset.ErrInvalidSymbol), errors.Is(err, ErrInvalidTrade):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, market.ErrDataUnavailable):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/asset"
	"github.com/poolvest/ledger/internal/limits"
	"github.com/poolvest/ledger/internal/model"
)

// --- Request/Response types ---

// CreateRequestBody is the JSON body for POST /requests.
type CreateRequestBody struct {
	InitiatorID  string          `json:"initiator_id"`
	Symbol       string          `json:"symbol"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

// ContributeBody is the JSON body for POST /requests/{id}/contributions.
type ContributeBody struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// RequestResponse is a request plus its contributions.
type RequestResponse struct {
	Request       *model.CollaborativeRequest `json:"request"`
	Contributions []model.Contribution        `json:"contributions"`
}

// --- HTTP Handlers ---

// HandleCreateRequest handles POST /api/v1/requests
func (s *Service) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.InitiatorID == "" {
		writeError(w, "initiator_id is required", http.StatusBadRequest)
		return
	}

	req, err := s.CreateRequest(r.Context(), body.InitiatorID, body.Symbol, body.TargetAmount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// HandleGetRequest handles GET /api/v1/requests/{requestID}
func (s *Service) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	req, contribs, err := s.GetRequest(r.Context(), requestID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if contribs == nil {
		contribs = []model.Contribution{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RequestResponse{Request: req, Contributions: contribs})
}

// HandleContribute handles POST /api/v1/requests/{requestID}/contributions
func (s *Service) HandleContribute(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var body ContributeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	req, err := s.Contribute(r.Context(), requestID, body.UserID, body.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// HandleSettle handles POST /api/v1/requests/{requestID}/settle
func (s *Service) HandleSettle(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	req, err := s.Settle(r.Context(), requestID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// HandleCancel handles POST /api/v1/requests/{requestID}/cancel
func (s *Service) HandleCancel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	req, err := s.Cancel(r.Context(), requestID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

// HandleListPending handles GET /api/v1/users/{userID}/pending
// Materializes the pending iterator into a JSON array.
func (s *Service) HandleListPending(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	pending := []model.CollaborativeRequest{}
	for req, err := range s.ListPending(r.Context(), userID) {
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		pending = append(pending, req)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pending)
}

// writeLedgerError maps the error taxonomy onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, asset.ErrInvalidSymbol):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrOverfundingRejected),
		errors.Is(err, limits.ErrPerRequestLimitExceeded),
		errors.Is(err, limits.ErrOpenTotalLimitExceeded):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSettlementFailed):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

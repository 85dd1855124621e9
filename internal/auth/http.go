package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// LoginBody is the JSON body for POST /api/v1/login.
type LoginBody struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// LoginResponse carries the issued session and the user's display identity.
type LoginResponse struct {
	Token       string `json:"token"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// HandleLogin handles POST /api/v1/login
func (a *Authenticator) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body LoginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Username == "" || body.Secret == "" {
		writeError(w, "username and secret are required", http.StatusBadRequest)
		return
	}

	u, sess, err := a.Authenticate(r.Context(), body.Username, body.Secret)
	if err != nil {
		if errors.Is(err, ErrAuthFailure) {
			writeError(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("login", "user", u.ID, "username", u.Username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{
		Token:       sess.Token,
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		ExpiresAt:   sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// HandleLogout handles POST /api/v1/logout
func (a *Authenticator) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	a.Revoke(body.Token)
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Package api serves the REST endpoints next to the WebSocket API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
)

// SessionSource is the read side of the pairing manager.
type SessionSource interface {
	Sessions() []session.Session
	ListConnectedAccounts() []string
	ConnectedAccounts() []namespace.Account
}

// SessionHandler handles session and account listing endpoints.
type SessionHandler struct {
	source SessionSource
}

func NewSessionHandler(source SessionSource) *SessionHandler {
	return &SessionHandler{source: source}
}

// HandleList handles GET /api/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.source.Sessions(),
	})
}

// HandleAccounts handles GET /api/accounts
func (h *SessionHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.source.ConnectedAccounts()
	caip10 := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		caip10 = append(caip10, acc.String())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": h.source.ListConnectedAccounts(),
		"caip10":   caip10,
	})
}

func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleList)
	mux.HandleFunc("GET /api/accounts", h.HandleAccounts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

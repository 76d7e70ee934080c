package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pairkit/server/user"
)

const maxSyncBody = 4 << 10

// SyncRequest is the only body POST /api/accounts/sync accepts. Any other
// field is rejected.
type SyncRequest struct {
	WalletAddress string `json:"wallet_address"`
	WalletKind    string `json:"wallet_kind"`
	ReferredBy    string `json:"referred_by,omitempty"`
}

type SyncResponse struct {
	UserID       string `json:"user_id"`
	ReferralCode string `json:"referral_code"`
	WalletKind   string `json:"wallet_kind"`
}

// AccountHandler records wallet connections reported by the browser.
type AccountHandler struct {
	store user.Store
	now   func() time.Time
}

func NewAccountHandler(store user.Store) *AccountHandler {
	return &AccountHandler{store: store, now: time.Now}
}

// HandleSync handles POST /api/accounts/sync
func (h *AccountHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSyncBody))
	dec.DisallowUnknownFields()

	var req SyncRequest
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	address, err := user.NormalizeAddress(req.WalletAddress)
	if err != nil {
		http.Error(w, "Invalid wallet address", http.StatusBadRequest)
		return
	}
	kind := strings.TrimSpace(req.WalletKind)
	if kind == "" {
		http.Error(w, "wallet_kind required", http.StatusBadRequest)
		return
	}

	u, _, err := user.RecordConnection(r.Context(), h.store, address, kind, req.ReferredBy, h.now())
	if err != nil {
		slog.Error("failed to record wallet connection", "walletKind", kind, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		UserID:       u.ID,
		ReferralCode: u.ReferralCode,
		WalletKind:   kind,
	})
}

func (h *AccountHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts/sync", h.HandleSync)
}


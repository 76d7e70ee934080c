package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
)

type mockSource struct {
	sessions []session.Session
	accounts []namespace.Account
}

func (m *mockSource) Sessions() []session.Session { return m.sessions }

func (m *mockSource) ConnectedAccounts() []namespace.Account { return m.accounts }

func (m *mockSource) ListConnectedAccounts() []string {
	out := []string{}
	for _, acc := range m.accounts {
		out = append(out, acc.Address)
	}
	return out
}

func TestSessionHandler_List(t *testing.T) {
	handler := NewSessionHandler(&mockSource{sessions: []session.Session{
		{Topic: "t1", State: session.StateActive},
		{Topic: "t2", State: session.StateActive},
	}})
	mux := http.NewServeMux()
	handler.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Sessions []session.Session `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(resp.Sessions))
	}
}

func TestSessionHandler_Accounts(t *testing.T) {
	acc, _ := namespace.ParseAccount("eip155:1:0x52908400098527886E0F7030069857D2E4169EE7")
	handler := NewSessionHandler(&mockSource{accounts: []namespace.Account{acc}})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	handler.HandleAccounts(rec, req)

	var resp struct {
		Accounts []string `json:"accounts"`
		CAIP10   []string `json:"caip10"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Accounts) != 1 || resp.Accounts[0] != acc.Address {
		t.Errorf("unexpected accounts %v", resp.Accounts)
	}
	if len(resp.CAIP10) != 1 || resp.CAIP10[0] != acc.String() {
		t.Errorf("unexpected caip10 %v", resp.CAIP10)
	}
}

func TestSessionHandler_AccountsEmpty(t *testing.T) {
	handler := NewSessionHandler(&mockSource{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	handler.HandleAccounts(rec, req)

	if body := rec.Body.String(); body != "{\"accounts\":[],\"caip10\":[]}\n" {
		t.Errorf("unexpected body %q", body)
	}
}

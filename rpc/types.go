// Package rpc defines JSON-RPC 2.0 wire format types: the UI API served on
// /ws and the wallet relay protocol.
package rpc

import (
	"time"

	"github.com/pairkit/server/session"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
}

type WalletConnectParams struct {
	WalletKind string `json:"wallet_kind"`
}

type WalletConnectResult struct {
	URI        string    `json:"uri"`
	Topic      string    `json:"topic"`
	WalletKind string    `json:"wallet_kind"`
	Success    bool      `json:"success"`
	Expiry     time.Time `json:"expiry"`
}

type WalletAccountsResult struct {
	Accounts []string `json:"accounts"`
	// CAIP10 lists the full namespace:reference:address ids.
	CAIP10 []string `json:"caip10"`
}

type WalletDisconnectAllResult struct {
	Closed   []string          `json:"closed"`
	Failures map[string]string `json:"failures,omitempty"`
}

type SessionListResult struct {
	Sessions []session.Session `json:"sessions"`
}

type SessionSubscribeResult struct {
	ID       string            `json:"id"`
	Sessions []session.Session `json:"sessions"`
}

type UnsubscribeParams struct {
	ID string `json:"id"`
}

// Server → Client

// SessionChangedParams is sent as "session.changed" to subscribers.
type SessionChangedParams struct {
	ID        string           `json:"id"`
	Operation string           `json:"operation"`
	Session   *session.Session `json:"session,omitempty"`
	Topic     string           `json:"topic,omitempty"`
}

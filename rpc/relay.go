package rpc

import (
	"encoding/json"
	"time"

	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

// Relay methods.
const (
	MethodSubscribe       = "irn_subscribe"
	MethodUnsubscribe     = "irn_unsubscribe"
	MethodSessionPropose  = "wc_sessionPropose"
	MethodSessionApprove  = "wc_sessionApprove"
	MethodSessionReject   = "wc_sessionReject"
	MethodSessionRequest  = "wc_sessionRequest"
	MethodSessionResponse = "wc_sessionResponse"
	MethodSessionUpdate   = "wc_sessionUpdate"
	MethodSessionDelete   = "wc_sessionDelete"
)

type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type TopicParams struct {
	Topic string `json:"topic"`
}

// Relay → Server

type SessionProposeParams struct {
	ID                 int64                            `json:"id"`
	PairingTopic       string                           `json:"pairingTopic"`
	RequiredNamespaces map[string]namespace.Requirement `json:"requiredNamespaces"`
	OptionalNamespaces map[string]namespace.Requirement `json:"optionalNamespaces,omitempty"`
	Relays             []namespace.Relay                `json:"relays,omitempty"`
	Proposer           session.Peer                     `json:"proposer"`
}

type SessionRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type SessionRequestParams struct {
	ID      int64          `json:"id"`
	Topic   string         `json:"topic"`
	ChainID string         `json:"chainId"`
	Request SessionRequest `json:"request"`
}

type SessionUpdateParams struct {
	Topic      string               `json:"topic"`
	Namespaces namespace.Namespaces `json:"namespaces"`
}

type SessionDeleteParams struct {
	Topic  string `json:"topic"`
	Reason Reason `json:"reason"`
}

// Server → Relay

type SessionApproveParams struct {
	ID                 int64                `json:"id"`
	PairingTopic       string               `json:"pairingTopic"`
	SessionTopic       string               `json:"sessionTopic"`
	ResponderPublicKey string               `json:"responderPublicKey,omitempty"`
	Namespaces         namespace.Namespaces `json:"namespaces"`
	Relay              namespace.Relay      `json:"relay"`
	Expiry             int64                `json:"expiry"`
}

type SessionRejectParams struct {
	ID           int64  `json:"id"`
	PairingTopic string `json:"pairingTopic"`
	Reason       Reason `json:"reason"`
}

type SessionResponseParams struct {
	Topic  string          `json:"topic"`
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonrpc2.Error `json:"error,omitempty"`
}

// UnixExpiry converts an expiry to the relay's seconds representation.
func UnixExpiry(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

// Protocol reason codes sent back to the wallet.
const (
	CodeNoMatchingSession    = 2
	CodeUserRejected         = 5000
	CodeUnsupportedChains    = 5100
	CodeUnsupportedMethods   = 5101
	CodeUnsupportedAccounts  = 5104
	CodeUnsupportedNamespace = 5105
	CodeUserDisconnected     = 6000
	CodeRequestExpired       = 8000
)

// Reason explains a rejection or a disconnect.
type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	ReasonUserDisconnected = Reason{Code: CodeUserDisconnected, Message: "user disconnected"}
	ReasonPeerDeleted      = Reason{Code: CodeUserDisconnected, Message: "session deleted by peer"}
	ReasonShutdown         = Reason{Code: CodeUserDisconnected, Message: "server shutting down"}
)

// Approval is what the wallet receives when its proposal is accepted.
type Approval struct {
	ProposalID         int64                `json:"id"`
	PairingTopic       string               `json:"pairingTopic"`
	SessionTopic       string               `json:"sessionTopic"`
	ResponderPublicKey string               `json:"responderPublicKey"`
	Namespaces         namespace.Namespaces `json:"namespaces"`
	Relay              namespace.Relay      `json:"relay"`
	Expiry             time.Time            `json:"expiry"`
}

// Response answers one signing request. Exactly one of Result and Error is set.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *jsonrpc2.Error `json:"error,omitempty"`
}

// Responder sends protocol messages back to the wallet side.
type Responder interface {
	Approve(ctx context.Context, a Approval) error
	Reject(ctx context.Context, pairingTopic string, proposalID int64, reason Reason) error
	Respond(ctx context.Context, topic string, resp Response) error
	Disconnect(ctx context.Context, topic string, reason Reason) error
}

var ErrUserRejected = errors.New("user rejected")

// SignError lets a Signer choose the code of its error response.
type SignError struct {
	Code    int64
	Message string
}

func (e *SignError) Error() string {
	return fmt.Sprintf("sign error %d: %s", e.Code, e.Message)
}

// Signer performs a signing request on behalf of the session owner.
type Signer interface {
	Sign(ctx context.Context, sess session.Session, req SigningRequestReceived) (json.RawMessage, error)
}

type SignerFunc func(ctx context.Context, sess session.Session, req SigningRequestReceived) (json.RawMessage, error)

func (f SignerFunc) Sign(ctx context.Context, sess session.Session, req SigningRequestReceived) (json.RawMessage, error) {
	return f(ctx, sess, req)
}

// RejectingSigner declines every request. It is the default Signer.
var RejectingSigner Signer = SignerFunc(func(context.Context, session.Session, SigningRequestReceived) (json.RawMessage, error) {
	return nil, ErrUserRejected
})

func errorResponse(id int64, code int64, msg string) Response {
	return Response{ID: id, Error: &jsonrpc2.Error{Code: code, Message: msg}}
}

func negotiationReason(err error) Reason {
	var negErr *namespace.NegotiationError
	if !errors.As(err, &negErr) {
		return Reason{Code: CodeUserRejected, Message: err.Error()}
	}
	switch negErr.Reason {
	case namespace.ReasonUnsupportedChains:
		return Reason{Code: CodeUnsupportedChains, Message: negErr.Error()}
	default:
		return Reason{Code: CodeUnsupportedNamespace, Message: negErr.Error()}
	}
}

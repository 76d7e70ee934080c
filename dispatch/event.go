package dispatch

import (
	"encoding/json"

	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
)

// Event is one inbound (or locally raised) session event. The set of
// variants is closed; Dispatcher.handle switches over all of them.
type Event interface {
	eventTopic() string
}

// ProposalReceived is a wallet asking to open a session over a pairing.
type ProposalReceived struct {
	ID           int64
	PairingTopic string
	Proposal     namespace.Proposal
	Proposer     session.Peer
}

// SigningRequestReceived asks for an action on an established session.
type SigningRequestReceived struct {
	ID      int64
	Topic   string
	ChainID string
	Method  string
	Params  json.RawMessage
}

// SessionDeleted is the peer ending a session.
type SessionDeleted struct {
	Topic  string
	Reason Reason
}

// SessionUpdated carries accounts the wallet disclosed for a session.
// Every account must be on a chain already approved for the session.
type SessionUpdated struct {
	Topic      string
	Namespaces namespace.Namespaces
}

// CloseRequested is a local request to end a session, e.g. from
// Manager.DisconnectAll.
type CloseRequested struct {
	Topic  string
	Reason Reason
}

func (e ProposalReceived) eventTopic() string       { return e.PairingTopic }
func (e SigningRequestReceived) eventTopic() string { return e.Topic }
func (e SessionDeleted) eventTopic() string         { return e.Topic }
func (e SessionUpdated) eventTopic() string         { return e.Topic }
func (e CloseRequested) eventTopic() string         { return e.Topic }

// TopicOf returns the ordering key of ev.
func TopicOf(ev Event) string {
	return ev.eventTopic()
}

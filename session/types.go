package session

import (
	"errors"
	"time"

	"github.com/pairkit/server/namespace"
)

var ErrSessionNotFound = errors.New("session not found")

type State string

const (
	StateProposed State = "proposed"
	StateActive   State = "active"
	StateClosed   State = "closed"
)

// Peer is the metadata a wallet announces about itself.
type Peer struct {
	PublicKey   string   `json:"publicKey,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

// Session is one approved wallet relationship bound to a topic.
type Session struct {
	Topic        string               `json:"topic"`
	PairingTopic string               `json:"pairing_topic,omitempty"`
	Namespaces   namespace.Namespaces `json:"namespaces"`
	State        State                `json:"state"`
	Peer         Peer                 `json:"peer"`
	CreatedAt    time.Time            `json:"created_at"`
	ClosedAt     *time.Time           `json:"closed_at,omitempty"`
	Expiry       time.Time            `json:"expiry,omitzero"`
}

// Accounts returns the parsed accounts the wallet bound to this session.
func (s Session) Accounts() []namespace.Account {
	return s.Namespaces.Accounts()
}

func (s Session) clone() Session {
	out := s
	out.Namespaces = s.Namespaces.Clone()
	out.Peer.Icons = append([]string(nil), s.Peer.Icons...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

type SessionChangeEvent struct {
	Op      Operation
	Session Session
}

// OnChangeListener is called with the registry lock held and must not block.
type OnChangeListener interface {
	OnSessionChange(event SessionChangeEvent)
}

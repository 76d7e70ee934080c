package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pairkit/server/namespace"
)

// Registry is the in-memory table of active sessions keyed by topic.
//
// Writes are expected from a single owner (the event dispatcher). The lock
// only keeps concurrent readers memory-safe.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	listener OnChangeListener
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (r *Registry) SetOnChangeListener(listener OnChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = listener
}

func (r *Registry) notifyChange(event SessionChangeEvent) {
	if r.listener != nil {
		r.listener.OnSessionChange(event)
	}
}

// Put inserts or replaces the session stored under s.Topic.
func (r *Registry) Put(s Session) error {
	if s.Topic == "" {
		return fmt.Errorf("session topic is empty")
	}
	if s.State == StateClosed {
		return fmt.Errorf("cannot store closed session %s", s.Topic)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	s = s.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	op := OperationCreate
	if _, exists := r.sessions[s.Topic]; exists {
		op = OperationUpdate
	}
	r.sessions[s.Topic] = s

	r.notifyChange(SessionChangeEvent{Op: op, Session: s.clone()})
	return nil
}

// Get returns the active session for topic or ErrSessionNotFound.
func (r *Registry) Get(topic string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[topic]
	if !ok || s.State != StateActive {
		return Session{}, ErrSessionNotFound
	}
	return s.clone(), nil
}

// Remove closes and deletes the session. It returns the closed session and
// whether anything was removed; removing an absent topic is a no-op.
func (r *Registry) Remove(topic string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[topic]
	if !ok {
		return Session{}, false
	}

	closedAt := r.now()
	s.State = StateClosed
	s.ClosedAt = &closedAt
	delete(r.sessions, topic)

	r.notifyChange(SessionChangeEvent{Op: OperationDelete, Session: s.clone()})
	return s, true
}

// ListActive returns active sessions, oldest first.
func (r *Registry) ListActive() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State == StateActive {
			result = append(result, s.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Topic < result[j].Topic
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// ListAccounts flattens the accounts of every active session, deduplicated
// by the full account id and sorted.
func (r *Registry) ListAccounts() []namespace.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	accounts := []namespace.Account{}
	for _, s := range r.sessions {
		if s.State != StateActive {
			continue
		}
		for _, acc := range s.Accounts() {
			key := acc.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			accounts = append(accounts, acc)
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].String() < accounts[j].String()
	})
	return accounts
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

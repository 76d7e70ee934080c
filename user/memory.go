package user

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store used when no data directory is
// configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	byWallet    map[string]User
	connections map[string][]Connection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byWallet:    make(map[string]User),
		connections: make(map[string][]Connection),
	}
}

func (s *MemoryStore) GetByWallet(_ context.Context, address string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byWallet[address]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) Create(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byWallet[u.WalletAddress]; ok {
		return ErrAlreadyExists
	}
	s.byWallet[u.WalletAddress] = u
	return nil
}

func (s *MemoryStore) SaveConnection(_ context.Context, c Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.UserID] = append(s.connections[c.UserID], c)
	return nil
}

func (s *MemoryStore) ListConnections(_ context.Context, userID string) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.connections[userID])
	slices.Reverse(out)
	if out == nil {
		out = []Connection{}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

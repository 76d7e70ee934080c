// Package watch pushes change notifications to subscribed JSON-RPC
// connections and reloads configuration files when they change.
package watch

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

// Notifier is the part of *jsonrpc2.Conn a subscription needs.
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

type Subscription struct {
	ID     string
	ConnID string
	Conn   Notifier
}

// BaseWatcher keeps the subscription table shared by watcher types.
type BaseWatcher struct {
	idPrefix string

	subMu         sync.RWMutex
	subscriptions map[string]*Subscription
	connToIDs     map[string][]string // connID -> subscription IDs

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(idPrefix string) *BaseWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		idPrefix:      idPrefix,
		subscriptions: make(map[string]*Subscription),
		connToIDs:     make(map[string][]string),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// GenerateID returns "<prefix>_<10 base32 chars>".
func (b *BaseWatcher) GenerateID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b.idPrefix + "_" + strings.ToLower(base32.StdEncoding.EncodeToString(buf)[:10])
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
	b.connToIDs[sub.ConnID] = append(b.connToIDs[sub.ConnID], sub.ID)
}

// RemoveSubscription drops one subscription and returns it, or nil.
func (b *BaseWatcher) RemoveSubscription(id string) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}
	delete(b.subscriptions, id)

	ids := b.connToIDs[sub.ConnID]
	for i, v := range ids {
		if v == id {
			b.connToIDs[sub.ConnID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(b.connToIDs[sub.ConnID]) == 0 {
		delete(b.connToIDs, sub.ConnID)
	}
	return sub
}

// CleanupConnection drops every subscription owned by connID.
func (b *BaseWatcher) CleanupConnection(connID string) []*Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	ids, ok := b.connToIDs[connID]
	if !ok {
		return nil
	}

	removed := make([]*Subscription, 0, len(ids))
	for _, id := range ids {
		if sub, ok := b.subscriptions[id]; ok {
			removed = append(removed, sub)
		}
		delete(b.subscriptions, id)
	}
	delete(b.connToIDs, connID)

	slog.Debug("cleaned up connection subscriptions", "connId", connID, "count", len(removed))
	return removed
}

func (b *BaseWatcher) snapshot() []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	return subs
}

// NotifyAll sends method to every subscriber and returns how many there were.
// Failed sends are logged and skipped.
func (b *BaseWatcher) NotifyAll(method string, makeParams func(sub *Subscription) any) int {
	subs := b.snapshot()
	for _, sub := range subs {
		if err := sub.Conn.Notify(b.ctx, method, makeParams(sub)); err != nil {
			slog.Debug("failed to notify subscriber", "id", sub.ID, "method", method, "error", err)
		}
	}
	return len(subs)
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) HasSubscriptions() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions) > 0
}

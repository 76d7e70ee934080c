package watch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pairkit/server/rpc"
	"github.com/pairkit/server/session"
	"github.com/sourcegraph/jsonrpc2"
)

type mockSource struct {
	sessions []session.Session
	listener session.OnChangeListener
}

func (m *mockSource) ListActive() []session.Session { return m.sessions }

func (m *mockSource) SetOnChangeListener(listener session.OnChangeListener) {
	m.listener = listener
}

type notification struct {
	Method string
	Params json.RawMessage
}

type mockNotifier struct {
	mu    sync.Mutex
	notes []notification
	ch    chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{ch: make(chan struct{}, 16)}
}

func (m *mockNotifier) Notify(_ context.Context, method string, params interface{}, _ ...jsonrpc2.CallOption) error {
	data, _ := json.Marshal(params)
	m.mu.Lock()
	m.notes = append(m.notes, notification{Method: method, Params: data})
	m.mu.Unlock()
	m.ch <- struct{}{}
	return nil
}

func (m *mockNotifier) wait(t *testing.T) notification {
	t.Helper()
	select {
	case <-m.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[len(m.notes)-1]
}

func TestSessionWatcher_Subscribe(t *testing.T) {
	source := &mockSource{sessions: []session.Session{
		{Topic: "t1", State: session.StateActive},
		{Topic: "t2", State: session.StateActive},
	}}
	w := NewSessionWatcher(source)

	id, sessions := w.Subscribe(newMockNotifier(), "conn1")
	if id == "" {
		t.Error("expected non-empty subscription ID")
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
	if !w.HasSubscriptions() {
		t.Error("expected HasSubscriptions to be true")
	}
}

func TestSessionWatcher_Unsubscribe(t *testing.T) {
	w := NewSessionWatcher(&mockSource{})

	id, _ := w.Subscribe(newMockNotifier(), "conn1")
	w.Unsubscribe(id)

	if w.HasSubscriptions() {
		t.Error("expected HasSubscriptions to be false")
	}
}

func TestSessionWatcher_ListenerRegistered(t *testing.T) {
	source := &mockSource{}
	w := NewSessionWatcher(source)

	if source.listener != w {
		t.Error("expected watcher to be registered as listener")
	}
}

func TestSessionWatcher_NotifiesSubscribers(t *testing.T) {
	w := NewSessionWatcher(&mockSource{})
	w.Start()
	defer w.Stop()

	n := newMockNotifier()
	id, _ := w.Subscribe(n, "conn1")

	w.OnSessionChange(session.SessionChangeEvent{
		Op:      session.OperationCreate,
		Session: session.Session{Topic: "t1", State: session.StateActive},
	})

	note := n.wait(t)
	if note.Method != "session.changed" {
		t.Errorf("expected session.changed, got %s", note.Method)
	}
	var params rpc.SessionChangedParams
	json.Unmarshal(note.Params, &params)
	if params.ID != id || params.Operation != "create" || params.Session == nil || params.Session.Topic != "t1" {
		t.Errorf("unexpected params %+v", params)
	}

	w.OnSessionChange(session.SessionChangeEvent{
		Op:      session.OperationDelete,
		Session: session.Session{Topic: "t1", State: session.StateClosed},
	})

	note = n.wait(t)
	params = rpc.SessionChangedParams{}
	json.Unmarshal(note.Params, &params)
	if params.Operation != "delete" || params.Topic != "t1" || params.Session != nil {
		t.Errorf("unexpected delete params %+v", params)
	}
}

func TestSessionWatcher_CleanupConnection(t *testing.T) {
	w := NewSessionWatcher(&mockSource{})
	w.Subscribe(newMockNotifier(), "conn1")
	w.Subscribe(newMockNotifier(), "conn1")
	w.Subscribe(newMockNotifier(), "conn2")

	removed := w.CleanupConnection("conn1")
	if len(removed) != 2 {
		t.Errorf("expected 2 removed, got %d", len(removed))
	}
	if !w.HasSubscriptions() {
		t.Error("conn2 subscription should remain")
	}
}

func TestSessionWatcher_OnSessionChange_AfterStop(t *testing.T) {
	w := NewSessionWatcher(&mockSource{})
	w.Start()
	w.Stop()

	// Should not block or panic after Stop
	for i := 0; i < 100; i++ {
		w.OnSessionChange(session.SessionChangeEvent{Op: session.OperationCreate})
	}
}

func TestSessionWatcher_OnSessionChange_NeverBlocks(t *testing.T) {
	w := NewSessionWatcher(&mockSource{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			w.OnSessionChange(session.SessionChangeEvent{Op: session.OperationCreate})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnSessionChange blocked with a full buffer")
	}
}

func TestSessionWatcher_WithRegistry(t *testing.T) {
	reg := session.NewRegistry()
	w := NewSessionWatcher(reg)
	w.Start()
	defer w.Stop()

	n := newMockNotifier()
	w.Subscribe(n, "conn1")

	reg.Put(session.Session{Topic: "t1", State: session.StateActive})
	if note := n.wait(t); note.Method != "session.changed" {
		t.Errorf("unexpected method %s", note.Method)
	}
}

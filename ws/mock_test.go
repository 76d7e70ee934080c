package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/pairkit/server/dispatch"
)

type mockTransport struct {
	mu          sync.Mutex
	sink        func(dispatch.Event)
	subscribed  []string
	disconnErr  map[string]error
	disconnects []string
}

func newMockTransport() *mockTransport {
	return &mockTransport{disconnErr: make(map[string]error)}
}

func (m *mockTransport) Start(_ context.Context, sink func(dispatch.Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
	return nil
}

func (m *mockTransport) Subscribe(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	return nil
}

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) Disconnected() <-chan struct{} { return nil }

func (m *mockTransport) Approve(context.Context, dispatch.Approval) error { return nil }

func (m *mockTransport) Reject(context.Context, string, int64, dispatch.Reason) error { return nil }

func (m *mockTransport) Respond(context.Context, string, dispatch.Response) error { return nil }

func (m *mockTransport) Disconnect(_ context.Context, topic string, _ dispatch.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, topic)
	return m.disconnErr[topic]
}

// emit delivers an inbound event as the relay would.
func (m *mockTransport) emit(ev dispatch.Event) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink(ev)
}

var errRelayDown = errors.New("relay down")

func (m *mockTransport) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/pairkit/server/dispatch"
)

type mockTransport struct {
	mu          sync.Mutex
	starts      int
	startErrs   []error
	sink        func(dispatch.Event)
	subscribed  []string
	subErr      error
	approvals   []dispatch.Approval
	disconnects map[string]dispatch.Reason
	disconnErr  map[string]error
	closed      bool
	// lost is replaced by every successful Start and closed by drop.
	lost        chan struct{}
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		disconnects: make(map[string]dispatch.Reason),
		disconnErr:  make(map[string]error),
	}
}

func (m *mockTransport) Start(_ context.Context, sink func(dispatch.Event)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if len(m.startErrs) > 0 {
		err := m.startErrs[0]
		m.startErrs = m.startErrs[1:]
		return err
	}
	m.sink = sink
	m.lost = make(chan struct{})
	return nil
}

func (m *mockTransport) Disconnected() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost
}

// drop simulates the connection going away.
func (m *mockTransport) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lost != nil {
		close(m.lost)
		m.lost = nil
	}
}

func (m *mockTransport) subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

func (m *mockTransport) Subscribe(_ context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.subscribed = append(m.subscribed, topic)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.lost != nil {
		close(m.lost)
		m.lost = nil
	}
	return nil
}

func (m *mockTransport) Approve(_ context.Context, a dispatch.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append(m.approvals, a)
	return nil
}

func (m *mockTransport) Reject(context.Context, string, int64, dispatch.Reason) error {
	return nil
}

func (m *mockTransport) Respond(context.Context, string, dispatch.Response) error {
	return nil
}

func (m *mockTransport) Disconnect(_ context.Context, topic string, reason dispatch.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects[topic] = reason
	return m.disconnErr[topic]
}

func (m *mockTransport) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

var errRelayDown = errors.New("relay down")

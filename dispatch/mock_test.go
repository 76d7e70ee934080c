package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

type rejection struct {
	PairingTopic string
	ProposalID   int64
	Reason       Reason
}

type disconnect struct {
	Topic  string
	Reason Reason
}

type mockResponder struct {
	mu          sync.Mutex
	approvals   []Approval
	rejections  []rejection
	responses   []Response
	disconnects []disconnect

	approveErr    error
	// onApprove runs before Approve acknowledges, as a relay round trip would.
	onApprove     func(Approval)
	disconnectErr map[string]error
	// respondDelay slows Respond so ordering tests can detect overlap.
	respondDelay time.Duration
	inFlight     int
	maxInFlight  int
}

func newMockResponder() *mockResponder {
	return &mockResponder{disconnectErr: make(map[string]error)}
}

func (m *mockResponder) Approve(_ context.Context, a Approval) error {
	m.mu.Lock()
	hook := m.onApprove
	m.mu.Unlock()
	if hook != nil {
		hook(a)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.approveErr != nil {
		return m.approveErr
	}
	m.approvals = append(m.approvals, a)
	return nil
}

func (m *mockResponder) getRejections() []rejection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]rejection(nil), m.rejections...)
}

func (m *mockResponder) Reject(_ context.Context, pairingTopic string, id int64, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, rejection{pairingTopic, id, reason})
	return nil
}

func (m *mockResponder) Respond(_ context.Context, _ string, resp Response) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.respondDelay
	m.mu.Unlock()

	time.Sleep(delay)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	m.responses = append(m.responses, resp)
	return nil
}

func (m *mockResponder) Disconnect(_ context.Context, topic string, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, disconnect{topic, reason})
	return m.disconnectErr[topic]
}

func (m *mockResponder) getResponses() []Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Response, len(m.responses))
	copy(out, m.responses)
	return out
}

var errRelayDown = errors.New("relay down")

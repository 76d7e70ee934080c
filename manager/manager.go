// Package manager is the entry point for wallet pairing: it owns the
// transport, the dispatcher and the session registry and exposes connect,
// account listing and disconnect.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pairkit/server/dispatch"
	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/pairing"
	"github.com/pairkit/server/session"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInitializationFailed = errors.New("initialization failed")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrShutdown             = errors.New("manager shut down")
)

// disconnectConcurrency bounds the DisconnectAll fan-out.
const disconnectConcurrency = 8

// Transport is the wallet-facing channel. Start begins delivering inbound
// events to sink in arrival order; Subscribe listens on a new pairing topic.
// Disconnected is closed when the connection opened by the last Start is
// lost; a nil channel means the loss is never reported.
type Transport interface {
	dispatch.Responder
	Start(ctx context.Context, sink func(dispatch.Event)) error
	Subscribe(ctx context.Context, topic string) error
	Disconnected() <-chan struct{}
	Close() error
}

type Config struct {
	Transport Transport
	// Catalog supplies the supported namespaces. Nil means namespace.Default.
	Catalog *namespace.Catalog
	Pairing pairing.Config
	Signer  dispatch.Signer

	CallTimeout time.Duration
	SessionTTL  time.Duration
}

type ConnectResult struct {
	URI        string    `json:"uri"`
	Topic      string    `json:"topic"`
	WalletKind string    `json:"wallet_kind"`
	Success    bool      `json:"success"`
	Expiry     time.Time `json:"expiry"`
}

type DisconnectResult struct {
	Closed []string `json:"closed"`
}

// PartialDisconnectError reports the sessions that failed to close during
// DisconnectAll. Every other session was closed.
type PartialDisconnectError struct {
	Failures map[string]error
}

func (e *PartialDisconnectError) Error() string {
	topics := make([]string, 0, len(e.Failures))
	for topic := range e.Failures {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	parts := make([]string, 0, len(topics))
	for _, topic := range topics {
		parts = append(parts, topic+": "+e.Failures[topic].Error())
	}
	return fmt.Sprintf("%d session(s) failed to disconnect: %s", len(topics), strings.Join(parts, "; "))
}

func (e *PartialDisconnectError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// runtime is everything Initialize creates. It exists at most once.
type runtime struct {
	dispatcher *dispatch.Dispatcher
	transport  Transport
}

type Manager struct {
	cfg      Config
	registry *session.Registry
	pairings *pairing.Factory

	// mu serializes Initialize and Shutdown; readers load rt directly.
	mu       sync.Mutex
	rt       atomic.Pointer[runtime]
	started  atomic.Bool
	shutdown bool
}

func New(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		registry: session.NewRegistry(),
		pairings: pairing.NewFactory(cfg.Pairing),
	}
}

// Registry exposes the session table for read-only consumers such as
// watchers and the REST API.
func (m *Manager) Registry() *session.Registry {
	return m.registry
}

func (m *Manager) supported() namespace.Namespaces {
	if m.cfg.Catalog == nil {
		return namespace.Default()
	}
	return m.cfg.Catalog.Supported()
}

// Initialize starts the transport and event wiring. It is idempotent and
// concurrent callers share one runtime. A failed attempt leaves nothing
// behind and may be retried. When the transport connection is lost the
// runtime is dropped and the next call starts a new one.
func (m *Manager) Initialize(ctx context.Context) error {
	_, err := m.runtime(ctx)
	return err
}

func (m *Manager) runtime(ctx context.Context) (*runtime, error) {
	if rt := m.rt.Load(); rt != nil {
		return rt, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, ErrShutdown)
	}
	if rt := m.rt.Load(); rt != nil {
		return rt, nil
	}
	if m.cfg.Transport == nil {
		return nil, fmt.Errorf("%w: no transport configured", ErrInitializationFailed)
	}

	d := dispatch.New(dispatch.Config{
		Registry:    m.registry,
		Responder:   m.cfg.Transport,
		Signer:      m.cfg.Signer,
		Supported:   m.supported,
		CallTimeout: m.cfg.CallTimeout,
		SessionTTL:  m.cfg.SessionTTL,
	})

	if err := m.cfg.Transport.Start(ctx, d.Submit); err != nil {
		d.Close()
		slog.Error("failed to start transport", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	rt := &runtime{dispatcher: d, transport: m.cfg.Transport}
	m.resubscribe(ctx, rt)
	m.rt.Store(rt)
	m.started.Store(true)
	if lost := m.cfg.Transport.Disconnected(); lost != nil {
		go m.watchTransport(rt, lost)
	}
	slog.Info("pairing manager initialized")
	return rt, nil
}

// resubscribe listens again on the topics of sessions that outlived a
// previous transport connection.
func (m *Manager) resubscribe(ctx context.Context, rt *runtime) {
	for _, sess := range m.registry.ListActive() {
		if err := rt.transport.Subscribe(ctx, sess.Topic); err != nil {
			slog.Warn("failed to resubscribe session", "topic", sess.Topic, "error", err)
		}
	}
}

func (m *Manager) watchTransport(rt *runtime, lost <-chan struct{}) {
	<-lost

	m.mu.Lock()
	dropped := m.rt.CompareAndSwap(rt, nil)
	m.mu.Unlock()
	if !dropped {
		return
	}

	slog.Warn("transport connection lost, next connect reinitializes")
	rt.dispatcher.Close()
}

// Connect creates a pairing for walletKind and starts listening on it.
func (m *Manager) Connect(ctx context.Context, walletKind string) (ConnectResult, error) {
	walletKind = strings.TrimSpace(walletKind)
	if walletKind == "" {
		return ConnectResult{}, fmt.Errorf("%w: wallet kind is required", ErrConnectionFailed)
	}

	rt, err := m.runtime(ctx)
	if err != nil {
		return ConnectResult{}, err
	}

	p, err := m.pairings.Create()
	if err != nil {
		return ConnectResult{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := rt.transport.Subscribe(ctx, p.Topic); err != nil {
		return ConnectResult{}, fmt.Errorf("%w: subscribe %s: %w", ErrConnectionFailed, p.Topic, err)
	}

	slog.Info("pairing created", "walletKind", walletKind, "pairingTopic", p.Topic, "expiry", p.Expiry)
	return ConnectResult{
		URI:        p.URI,
		Topic:      p.Topic,
		WalletKind: walletKind,
		Success:    true,
		Expiry:     p.Expiry,
	}, nil
}

// ListConnectedAccounts returns the unique addresses bound to active
// sessions, sorted. It never fails; before Initialize it is empty.
func (m *Manager) ListConnectedAccounts() []string {
	addresses := []string{}
	if !m.started.Load() {
		return addresses
	}

	seen := make(map[string]struct{})
	for _, acc := range m.registry.ListAccounts() {
		if _, dup := seen[acc.Address]; dup {
			continue
		}
		seen[acc.Address] = struct{}{}
		addresses = append(addresses, acc.Address)
	}
	sort.Strings(addresses)
	return addresses
}

// ConnectedAccounts returns the full CAIP-10 accounts of active sessions.
func (m *Manager) ConnectedAccounts() []namespace.Account {
	if !m.started.Load() {
		return []namespace.Account{}
	}
	return m.registry.ListAccounts()
}

// Sessions returns the active sessions, oldest first.
func (m *Manager) Sessions() []session.Session {
	if !m.started.Load() {
		return []session.Session{}
	}
	return m.registry.ListActive()
}

// DisconnectAll closes every active session with the user-disconnected
// reason. It attempts all of them and waits for every close to finish. When
// some fail, the error is a *PartialDisconnectError.
func (m *Manager) DisconnectAll(ctx context.Context) (DisconnectResult, error) {
	return m.closeAll(ctx, dispatch.ReasonUserDisconnected)
}

func (m *Manager) closeAll(ctx context.Context, reason dispatch.Reason) (DisconnectResult, error) {
	result := DisconnectResult{Closed: []string{}}
	if !m.started.Load() {
		return result, nil
	}
	rt, err := m.runtime(ctx)
	if err != nil {
		return result, err
	}

	sessions := m.registry.ListActive()
	// Closes are waited on even if ctx is cancelled; each one is bounded by
	// the dispatcher's call timeout.
	waitCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	failures := make(map[string]error)

	var g errgroup.Group
	g.SetLimit(disconnectConcurrency)
	for _, sess := range sessions {
		g.Go(func() error {
			err := rt.dispatcher.Dispatch(waitCtx, dispatch.CloseRequested{Topic: sess.Topic, Reason: reason})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[sess.Topic] = err
				return nil
			}
			result.Closed = append(result.Closed, sess.Topic)
			return nil
		})
	}
	g.Wait()

	sort.Strings(result.Closed)
	slog.Info("disconnect all finished", "closed", len(result.Closed), "failed", len(failures))

	if len(failures) > 0 {
		return result, &PartialDisconnectError{Failures: failures}
	}
	return result, nil
}

// Shutdown drains queued events and closes the transport. Sessions are left
// open on the wallet side.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	rt := m.rt.Swap(nil)
	m.shutdown = true
	m.mu.Unlock()

	if rt == nil {
		return nil
	}

	// Stop inbound traffic first so the drain terminates.
	err := rt.transport.Close()

	drained := make(chan struct{})
	go func() {
		rt.dispatcher.Close()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}

	slog.Info("pairing manager shutdown complete")
	return err
}

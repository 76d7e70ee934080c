// Package dispatch routes session events to their handlers.
//
// Every topic has its own FIFO queue and at most one worker goroutine, so
// events on one topic are handled strictly in arrival order and never
// overlap. Different topics are handled in parallel. The dispatcher is the
// only writer of the session registry.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pairkit/server/logger"
	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/session"
)

var (
	ErrClosed       = errors.New("dispatcher closed")
	ErrHandlerPanic = errors.New("event handler panicked")
)

const (
	DefaultCallTimeout = 30 * time.Second
	DefaultSignTimeout = 5 * time.Minute
	DefaultSessionTTL  = 7 * 24 * time.Hour
)

type Config struct {
	Registry  *session.Registry
	Responder Responder
	// Signer defaults to RejectingSigner.
	Signer Signer
	// Supported returns the current capability set. Defaults to
	// namespace.Default.
	Supported func() namespace.Namespaces

	CallTimeout time.Duration
	SignTimeout time.Duration
	SessionTTL  time.Duration

	// Rand feeds session key generation. Nil means crypto/rand.
	Rand io.Reader
}

type job struct {
	ev   Event
	done chan error
	// gate, when set, makes the job a barrier: the queue waits for it to be
	// closed and handles no event for it.
	gate chan struct{}
}

// topicQueue holds pending events for one topic. Do not cache references;
// the queue is dropped when it drains.
type topicQueue struct {
	pending []job
}

type Dispatcher struct {
	registry  *session.Registry
	responder Responder
	signer    Signer
	supported func() namespace.Namespaces

	callTimeout time.Duration
	signTimeout time.Duration
	sessionTTL  time.Duration
	rand        io.Reader
	now         func() time.Time

	mu     sync.Mutex
	queues map[string]*topicQueue
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Dispatcher {
	if cfg.Signer == nil {
		cfg.Signer = RejectingSigner
	}
	if cfg.Supported == nil {
		cfg.Supported = namespace.Default
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = DefaultSignTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry:    cfg.Registry,
		responder:   cfg.Responder,
		signer:      cfg.Signer,
		supported:   cfg.Supported,
		callTimeout: cfg.CallTimeout,
		signTimeout: cfg.SignTimeout,
		sessionTTL:  cfg.SessionTTL,
		rand:        cfg.Rand,
		now:         time.Now,
		queues:      make(map[string]*topicQueue),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit queues ev without waiting for it to be handled.
func (d *Dispatcher) Submit(ev Event) {
	if err := d.enqueue(ev, nil); err != nil {
		slog.Warn("event dropped", "topic", TopicOf(ev), "type", fmt.Sprintf("%T", ev), "error", err)
	}
}

// Dispatch queues ev and waits for its handler to finish. ctx only bounds
// the wait: a handler that has been queued always runs to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	done := make(chan error, 1)
	if err := d.enqueue(ev, done); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(ev Event, done chan error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.push(ev.eventTopic(), job{ev: ev, done: done})
	return nil
}

// hold blocks the queue of topic until release is called. Events submitted
// for topic meanwhile are handled after release, in order. It works after
// Close so that handlers still draining can use it.
func (d *Dispatcher) hold(topic string) (release func()) {
	gate := make(chan struct{})

	d.mu.Lock()
	d.push(topic, job{gate: gate})
	d.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// push appends j to the queue of topic and starts a worker if none runs.
// d.mu must be held.
func (d *Dispatcher) push(topic string, j job) {
	q, running := d.queues[topic]
	if !running {
		q = &topicQueue{}
		d.queues[topic] = q
	}
	q.pending = append(q.pending, j)

	if !running {
		d.wg.Add(1)
		go d.drain(topic, q)
	}
}

// drain runs queued events for topic one at a time and exits when the queue
// is empty.
func (d *Dispatcher) drain(topic string, q *topicQueue) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, topic)
			d.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = job{}
		q.pending = q.pending[1:]
		d.mu.Unlock()

		if j.gate != nil {
			<-j.gate
			continue
		}

		err := d.handle(j.ev)
		if j.done != nil {
			j.done <- err
		}
	}
}

// Pending returns the number of queued events not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, q := range d.queues {
		for _, j := range q.pending {
			if j.gate == nil {
				n++
			}
		}
	}
	return n
}

// Close stops accepting events and waits for every queued event to be
// handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	slog.Info("dispatcher closed")
}

func (d *Dispatcher) handle(ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "event handler panicked", "topic", ev.eventTopic(), "type", fmt.Sprintf("%T", ev))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	switch e := ev.(type) {
	case ProposalReceived:
		return d.handleProposal(e)
	case SigningRequestReceived:
		return d.handleSigningRequest(e)
	case SessionDeleted:
		return d.handleDeleted(e)
	case SessionUpdated:
		return d.handleUpdated(e)
	case CloseRequested:
		return d.handleClose(e)
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
}

func (d *Dispatcher) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.callTimeout)
}

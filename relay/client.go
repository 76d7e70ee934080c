// Package relay connects to a wallet relay over JSON-RPC on a WebSocket and
// implements the manager's Transport.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pairkit/server/dispatch"
	"github.com/pairkit/server/manager"
	"github.com/pairkit/server/namespace"
	"github.com/pairkit/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

var ErrNotConnected = errors.New("relay not connected")

const defaultDialTimeout = 10 * time.Second

type Config struct {
	URL         string
	ProjectID   string
	DialTimeout time.Duration
}

// Client is one connection to the relay. Inbound calls are handled on the
// read loop, one at a time, so events reach the sink in arrival order.
type Client struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	conn   *jsonrpc2.Conn
	lost   chan struct{}
	sink   func(dispatch.Event)
	topics map[string]struct{}
}

var _ manager.Transport = (*Client)(nil)

func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Client{
		cfg:    cfg,
		log:    log,
		topics: make(map[string]struct{}),
	}
}

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("relay url must be ws:// or wss://, got %q", c.cfg.URL)
	}
	if c.cfg.ProjectID != "" {
		q := u.Query()
		q.Set("projectId", c.cfg.ProjectID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Start dials the relay and begins delivering inbound events to sink.
func (c *Client) Start(ctx context.Context, sink func(dispatch.Event)) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	wsConn, _, err := websocket.Dial(dialCtx, target, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	lost := make(chan struct{})
	c.mu.Lock()
	c.sink = sink
	c.conn = jsonrpc2.NewConn(context.Background(), rpc.NewWebSocketStream(wsConn), &inboundHandler{client: c})
	c.lost = lost
	conn := c.conn
	c.mu.Unlock()

	go func() {
		<-conn.DisconnectNotify()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		close(lost)
		c.log.Warn("relay connection closed")
	}()

	c.log.Info("connected to relay", "url", c.cfg.URL)
	return nil
}

// Disconnected is closed when the connection opened by the last Start ends.
func (c *Client) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

func (c *Client) current() (*jsonrpc2.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) call(ctx context.Context, method string, params any) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	var result json.RawMessage
	if err := conn.Call(ctx, method, params, &result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Subscribe asks the relay to deliver messages published on topic.
func (c *Client) Subscribe(ctx context.Context, topic string) error {
	if err := c.call(ctx, rpc.MethodSubscribe, rpc.TopicParams{Topic: topic}); err != nil {
		return err
	}
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
	c.log.Debug("subscribed", "topic", topic)
	return nil
}

func (c *Client) unsubscribe(ctx context.Context, topic string) {
	c.mu.Lock()
	_, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := c.call(ctx, rpc.MethodUnsubscribe, rpc.TopicParams{Topic: topic}); err != nil {
		c.log.Debug("unsubscribe failed", "topic", topic, "error", err)
	}
}

// Approve subscribes to the new session topic before announcing it, so no
// request on it can be missed.
func (c *Client) Approve(ctx context.Context, a dispatch.Approval) error {
	if err := c.Subscribe(ctx, a.SessionTopic); err != nil {
		return err
	}
	params := rpc.SessionApproveParams{
		ID:                 a.ProposalID,
		PairingTopic:       a.PairingTopic,
		SessionTopic:       a.SessionTopic,
		ResponderPublicKey: a.ResponderPublicKey,
		Namespaces:         a.Namespaces,
		Relay:              a.Relay,
		Expiry:             rpc.UnixExpiry(a.Expiry),
	}
	if err := c.call(ctx, rpc.MethodSessionApprove, params); err != nil {
		c.unsubscribe(ctx, a.SessionTopic)
		return err
	}
	return nil
}

func (c *Client) Reject(ctx context.Context, pairingTopic string, proposalID int64, reason dispatch.Reason) error {
	return c.call(ctx, rpc.MethodSessionReject, rpc.SessionRejectParams{
		ID:           proposalID,
		PairingTopic: pairingTopic,
		Reason:       rpc.Reason(reason),
	})
}

func (c *Client) Respond(ctx context.Context, topic string, resp dispatch.Response) error {
	return c.call(ctx, rpc.MethodSessionResponse, rpc.SessionResponseParams{
		Topic:  topic,
		ID:     resp.ID,
		Result: resp.Result,
		Error:  resp.Error,
	})
}

func (c *Client) Disconnect(ctx context.Context, topic string, reason dispatch.Reason) error {
	err := c.call(ctx, rpc.MethodSessionDelete, rpc.SessionDeleteParams{Topic: topic, Reason: rpc.Reason(reason)})
	c.unsubscribe(ctx, topic)
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) deliver(ev dispatch.Event) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// inboundHandler turns relay calls into dispatcher events. It runs on the
// connection's read loop and must not issue calls on the same connection.
type inboundHandler struct {
	client *Client
}

func (h *inboundHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	log := h.client.log.With("method", req.Method)

	ev, err := decodeEvent(req)
	if err != nil {
		log.Warn("invalid relay message", "error", err)
		if !req.Notif {
			replyError(ctx, conn, req.ID, err)
		}
		return
	}

	h.client.deliver(ev)

	if !req.Notif {
		if err := conn.Reply(ctx, req.ID, true); err != nil {
			log.Debug("failed to ack relay message", "error", err)
		}
	}
}

func replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, err error) {
	var rpcErr *jsonrpc2.Error
	if !errors.As(err, &rpcErr) {
		rpcErr = &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	conn.ReplyWithError(ctx, id, rpcErr)
}

func decodeEvent(req *jsonrpc2.Request) (dispatch.Event, error) {
	if req.Params == nil {
		switch req.Method {
		case rpc.MethodSessionPropose, rpc.MethodSessionRequest, rpc.MethodSessionUpdate, rpc.MethodSessionDelete:
			return nil, fmt.Errorf("missing params")
		}
	}

	switch req.Method {
	case rpc.MethodSessionPropose:
		var p rpc.SessionProposeParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		return dispatch.ProposalReceived{
			ID:           p.ID,
			PairingTopic: p.PairingTopic,
			Proposal: namespace.Proposal{
				RequiredNamespaces: p.RequiredNamespaces,
				OptionalNamespaces: p.OptionalNamespaces,
				Relays:             p.Relays,
			},
			Proposer: p.Proposer,
		}, nil

	case rpc.MethodSessionRequest:
		var p rpc.SessionRequestParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		return dispatch.SigningRequestReceived{
			ID:      p.ID,
			Topic:   p.Topic,
			ChainID: p.ChainID,
			Method:  p.Request.Method,
			Params:  p.Request.Params,
		}, nil

	case rpc.MethodSessionUpdate:
		var p rpc.SessionUpdateParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		return dispatch.SessionUpdated{Topic: p.Topic, Namespaces: p.Namespaces}, nil

	case rpc.MethodSessionDelete:
		var p rpc.SessionDeleteParams
		if err := json.Unmarshal(*req.Params, &p); err != nil {
			return nil, err
		}
		return dispatch.SessionDeleted{Topic: p.Topic, Reason: dispatch.Reason(p.Reason)}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

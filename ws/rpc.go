// Package ws serves the JSON-RPC 2.0 control API over WebSocket and provides
// a matching client.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pairkit/server/manager"
	"github.com/pairkit/server/rpc"
	"github.com/pairkit/server/watch"
	"github.com/sourcegraph/jsonrpc2"
)

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token          string
	version        string
	manager        *manager.Manager
	sessionWatcher *watch.SessionWatcher
	devMode        bool
}

func NewRPCHandler(token, version string, m *manager.Manager, sessionWatcher *watch.SessionWatcher, devMode bool) *RPCHandler {
	return &RPCHandler{
		token:          token,
		version:        version,
		manager:        m,
		sessionWatcher: sessionWatcher,
		devMode:        devMode,
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	h.handleConnection(r.Context(), conn)
}

func (h *RPCHandler) handleConnection(ctx context.Context, wsConn *websocket.Conn) {
	connID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("connId", connID)
	log.Info("new websocket connection")

	handler := &rpcMethodHandler{
		RPCHandler: h,
		connID:     connID,
		log:        log,
	}

	rpcConn := jsonrpc2.NewConn(ctx, rpc.NewWebSocketStream(wsConn), jsonrpc2.AsyncHandler(handler))

	<-rpcConn.DisconnectNotify()

	removed := h.sessionWatcher.CleanupConnection(connID)
	log.Info("connection closed", "subscriptions", len(removed))
}

type rpcMethodHandler struct {
	*RPCHandler
	connID string
	log    *slog.Logger

	authMu        sync.Mutex
	authenticated bool
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	// Auth must be the first request
	if !h.isAuthenticated() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	switch req.Method {
	case "wallet.connect":
		h.handleWalletConnect(ctx, conn, req)
	case "wallet.accounts":
		h.handleWalletAccounts(ctx, conn, req)
	case "wallet.disconnect_all":
		h.handleWalletDisconnectAll(ctx, conn, req)
	case "session.list":
		h.handleSessionList(ctx, conn, req)
	case "session.subscribe":
		h.handleSessionSubscribe(ctx, conn, req)
	case "session.unsubscribe":
		h.handleSessionUnsubscribe(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) isAuthenticated() bool {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	return h.authenticated
}

func (h *rpcMethodHandler) setAuthenticated() {
	h.authMu.Lock()
	h.authenticated = true
	h.authMu.Unlock()
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.setAuthenticated()
	h.log.Info("authenticated")

	if err := conn.Reply(ctx, req.ID, rpc.AuthResult{Version: h.version}); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func (h *rpcMethodHandler) handleWalletConnect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.WalletConnectParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.WalletKind == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "wallet_kind required")
		return
	}

	res, err := h.manager.Connect(ctx, params.WalletKind)
	if err != nil {
		h.log.Error("wallet connect failed", "walletKind", params.WalletKind, "error", err)
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, err.Error())
		return
	}

	result := rpc.WalletConnectResult{
		URI:        res.URI,
		Topic:      res.Topic,
		WalletKind: res.WalletKind,
		Success:    res.Success,
		Expiry:     res.Expiry,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send wallet connect response", "error", err)
	}
}

func (h *rpcMethodHandler) handleWalletAccounts(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	accounts := h.manager.ConnectedAccounts()
	caip10 := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		caip10 = append(caip10, acc.String())
	}

	result := rpc.WalletAccountsResult{
		Accounts: h.manager.ListConnectedAccounts(),
		CAIP10:   caip10,
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send wallet accounts response", "error", err)
	}
}

func (h *rpcMethodHandler) handleWalletDisconnectAll(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	res, err := h.manager.DisconnectAll(ctx)
	result := rpc.WalletDisconnectAllResult{Closed: res.Closed}

	var partial *manager.PartialDisconnectError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		result.Failures = make(map[string]string, len(partial.Failures))
		for topic, ferr := range partial.Failures {
			result.Failures[topic] = ferr.Error()
		}
		h.log.Warn("some sessions failed to disconnect", "failed", len(partial.Failures))
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, err.Error())
		return
	}

	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send disconnect response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	result := rpc.SessionListResult{Sessions: h.manager.Sessions()}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send session list response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, sessions := h.sessionWatcher.Subscribe(conn, h.connID)

	result := rpc.SessionSubscribeResult{ID: id, Sessions: sessions}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send session subscribe response", "error", err)
	}
}

func (h *rpcMethodHandler) handleSessionUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.UnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.sessionWatcher.Unsubscribe(params.ID)

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send session unsubscribe response", "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errors.New("missing params")
	}
	return json.Unmarshal(*req.Params, v)
}

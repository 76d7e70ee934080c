package ws

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
	"github.com/pairkit/server/rpc"
	"github.com/sourcegraph/jsonrpc2"
)

// Client talks to an RPCHandler. It is used by pairctl.
type Client struct {
	conn *jsonrpc2.Conn
}

// Dial connects to url and authenticates with token.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn: jsonrpc2.NewConn(context.Background(), rpc.NewWebSocketStream(wsConn), ignoreNotifications{}),
	}

	var auth rpc.AuthResult
	if err := c.conn.Call(ctx, "auth", rpc.AuthParams{Token: token}, &auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("auth: %w", err)
	}
	return c, nil
}

func (c *Client) Connect(ctx context.Context, walletKind string) (rpc.WalletConnectResult, error) {
	var result rpc.WalletConnectResult
	err := c.conn.Call(ctx, "wallet.connect", rpc.WalletConnectParams{WalletKind: walletKind}, &result)
	return result, err
}

func (c *Client) Accounts(ctx context.Context) (rpc.WalletAccountsResult, error) {
	var result rpc.WalletAccountsResult
	err := c.conn.Call(ctx, "wallet.accounts", struct{}{}, &result)
	return result, err
}

func (c *Client) DisconnectAll(ctx context.Context) (rpc.WalletDisconnectAllResult, error) {
	var result rpc.WalletDisconnectAllResult
	err := c.conn.Call(ctx, "wallet.disconnect_all", struct{}{}, &result)
	return result, err
}

func (c *Client) Sessions(ctx context.Context) (rpc.SessionListResult, error) {
	var result rpc.SessionListResult
	err := c.conn.Call(ctx, "session.list", struct{}{}, &result)
	return result, err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type ignoreNotifications struct{}

func (ignoreNotifications) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}

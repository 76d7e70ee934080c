// Package commands implements the pairctl command tree.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairkit/server/ws"
)

var (
	serverURL string
	token     string
	timeout   time.Duration
)

func Execute() error {
	root := &cobra.Command{
		Use:           "pairctl",
		Short:         "Control a running pairkit server",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:8080/ws", "server WebSocket URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("AUTH_TOKEN"), "auth token (default $AUTH_TOKEN)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(connectCmd(), accountsCmd(), disconnectCmd(), sessionsCmd())
	return root.ExecuteContext(context.Background())
}

// withClient dials the server, runs fn and closes the connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *ws.Client) error) error {
	if token == "" {
		return fmt.Errorf("auth token required (use --token or AUTH_TOKEN)")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, err := ws.Dial(ctx, serverURL, token)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

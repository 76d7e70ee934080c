package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairkit/server/ws"
)

func accountsCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List addresses of connected wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *ws.Client) error {
				res, err := c.Accounts(ctx)
				if err != nil {
					return err
				}
				list := res.Accounts
				if full {
					list = res.CAIP10
				}
				if len(list) == 0 {
					fmt.Println("no connected accounts")
					return nil
				}
				for _, acc := range list {
					fmt.Println(acc)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "caip10", false, "print chain-qualified account ids")
	return cmd
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *ws.Client) error {
				res, err := c.Sessions(ctx)
				if err != nil {
					return err
				}
				for _, s := range res.Sessions {
					fmt.Printf("%s  %-20s  %d account(s)\n", s.Topic, s.Peer.Name, len(s.Accounts()))
				}
				return nil
			})
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pairkit/server/ws"
)

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Close every active wallet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *ws.Client) error {
				res, err := c.DisconnectAll(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("closed %d session(s)\n", len(res.Closed))
				if len(res.Failures) == 0 {
					return nil
				}

				topics := make([]string, 0, len(res.Failures))
				for topic := range res.Failures {
					topics = append(topics, topic)
				}
				sort.Strings(topics)
				for _, topic := range topics {
					fmt.Printf("failed %s: %s\n", topic, res.Failures[topic])
				}
				return fmt.Errorf("%d session(s) failed to disconnect", len(res.Failures))
			})
		},
	}
}

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pairkit/server/startup"
	"github.com/pairkit/server/ws"
)

func connectCmd() *cobra.Command {
	var walletKind string
	var noQR bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Create a pairing URI for a wallet to scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *ws.Client) error {
				res, err := c.Connect(ctx, walletKind)
				if err != nil {
					return err
				}
				if !noQR {
					startup.PrintQRCode(res.URI, "Scan with "+res.WalletKind)
				}
				fmt.Printf("URI:     %s\n", res.URI)
				fmt.Printf("Topic:   %s\n", res.Topic)
				fmt.Printf("Expires: %s\n", res.Expiry.Local().Format("15:04:05"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&walletKind, "wallet", "", "wallet kind, e.g. metamask")
	cmd.Flags().BoolVar(&noQR, "no-qr", false, "do not print the QR code")
	cmd.MarkFlagRequired("wallet")
	return cmd
}

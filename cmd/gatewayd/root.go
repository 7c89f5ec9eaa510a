package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute builds and runs the gatewayd command tree, grounded on
// cmd/cprotocol/root.go's one-root-one-subcommand shape.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "Market data gateway: multiplexes upstream feeds to WebSocket clients",
	}
	root.AddCommand(runCmd())
	return root.ExecuteContext(ctx)
}

func init() {
	log.Logger = log.With().Str("service", "gatewayd").Logger()
}

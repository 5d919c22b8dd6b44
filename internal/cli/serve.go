package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/smartlamp/lamplink/internal/api"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard backend",
		Long: `Run the dashboard backend.

Holds the live lamp connection open and serves a REST API under /api/v1 plus a
WebSocket event stream on /ws for dashboard clients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var server *api.Server
			return opts.withApp(ctx, func(ctx context.Context, d deps) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Dashboard backend listening on http://%s\n", server.Addr())
				<-ctx.Done()
				return nil
			}, api.Module, fx.Populate(&server))
		},
	}
}

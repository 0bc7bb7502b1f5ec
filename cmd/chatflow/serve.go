package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/cli"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Serves the flow and bot routes, the OpenAPI document, server-sent events and metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()

			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr != "" {
				app.Config.Server.Addr = addr
			}
			app.Logger.Info("Serving bots", "dir", app.Config.Bots.Dir, "store", app.Config.Store.Driver)
			if err := app.Serve(ctx); err != nil {
				return err
			}
			app.Logger.Info("Server stopped gracefully", "signal", ctx.Signal())
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (overrides server.addr)")
	return cmd
}

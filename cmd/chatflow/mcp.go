package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/pkg/adapters/mcp"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var transport, addr, baseURL string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the Model Context Protocol (MCP) server",
		Long: `Exposes bot sessions as MCP tools so agents can hold conversations.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()

			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := mcp.NewServer(app.Engine, chatflow.Version,
				mcp.WithLogger(app.Logger),
				mcp.WithMaxInputSize(app.Config.Engine.MaxInputSize),
			)
			switch transport {
			case "stdio":
				app.Logger.Info("Starting MCP server (stdio)")
				return srv.ServeStdio()
			case "sse":
				if baseURL == "" {
					baseURL = "http://localhost" + addr
				}
				return srv.ServeSSE(ctx, addr, baseURL)
			default:
				return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "Address to listen on (only for SSE)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL announced to SSE clients")
	return cmd
}

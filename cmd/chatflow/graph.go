package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/pkg/graph"
)

func newGraphCmd(flags *rootFlags) *cobra.Command {
	var format, sessionID string
	cmd := &cobra.Command{
		Use:   "graph <bot-id>",
		Short: "Export the flow graph of a bot",
		Long:  `Outputs a Mermaid diagram (graph TD) of the bot flow, or its JSON. With --session the visited path is highlighted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			bot, err := app.Engine.Bot(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(bot.Flow)
			case "mermaid":
				var overlay *graph.Overlay
				if sessionID != "" {
					sess, err := app.Engine.Session(ctx, sessionID)
					if err != nil {
						return err
					}
					overlay = graph.OverlayFromHistory(sess.History, sess.CurrentNodeID)
				}
				fmt.Fprint(out, graph.GenerateMermaid(bot.Flow, overlay))
				return nil
			default:
				return fmt.Errorf("unknown format %q, supported: mermaid, json", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format: mermaid or json")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Highlight the path taken by this session")
	return cmd
}

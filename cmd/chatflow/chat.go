package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/cli"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var opts cli.ChatOptions
	cmd := &cobra.Command{
		Use:     "chat",
		Aliases: []string{"run"},
		Short:   "Chat with a bot in the terminal",
		Long: `Starts a new session with --bot, or resumes one with --session.
Closing the input (Ctrl+D) or interrupting keeps the session so it can be resumed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.BotID == "" && len(args) > 0 {
				opts.BotID = args[0]
			}
			if opts.BotID == "" && opts.SessionID == "" {
				return errors.New("either --bot or --session is required")
			}

			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()

			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			opts.In = cmd.InOrStdin()
			opts.Out = cmd.OutOrStdout()
			_, err = app.Chat(ctx, opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.BotID, "bot", "b", "", "Bot to start a session with")
	cmd.Flags().StringVarP(&opts.SessionID, "session", "s", "", "Session to resume")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Exchange NDJSON replies and responses")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Hide the banner")
	return cmd
}

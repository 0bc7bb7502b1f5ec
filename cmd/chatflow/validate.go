package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/graph"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [bot-id]...",
		Short: "Check bot flows for consistency",
		Long:  `Reports broken edges, unreachable nodes, unknown node types and unresolved branch options. Checks every bot when no ID is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			provider := file.NewBotProvider(cfg.Bots.Dir)

			ids := args
			if len(ids) == 0 {
				if ids, err = provider.ListBots(cmd.Context()); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no bots found in %s", cfg.Bots.Dir)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range ids {
				bot, err := provider.Bot(cmd.Context(), id)
				if err == nil {
					err = graph.Validate(bot.Flow)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", id, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s\n", id)
			}
			if failed > 0 {
				return errors.New("validation failed")
			}
			return nil
		},
	}
}

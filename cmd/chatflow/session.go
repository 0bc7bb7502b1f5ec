package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd(flags *rootFlags) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage persisted sessions",
		Long:  `List, inspect, and remove sessions in the configured store.`,
	}

	var botID string
	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if botID == "" {
				ids, err := app.Engine.Store().List(ctx)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(out, "No sessions found.")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(out, "- "+id)
				}
				return nil
			}

			sessions, err := app.Engine.Sessions(ctx, botID)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintf(out, "No sessions found for bot %s.\n", botID)
				return nil
			}
			for _, s := range sessions {
				status := "active"
				if s.Finished {
					status = "finished"
				}
				fmt.Fprintf(out, "- %s\t%s\t%s\t%s\n", s.ID, status, s.CurrentNodeID, s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	lsCmd.Flags().StringVarP(&botID, "bot", "b", "", "Only list sessions of this bot")

	inspectCmd := &cobra.Command{
		Use:   "inspect <session-id>",
		Short: "Print the stored state of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			sess, err := app.Engine.Session(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", args[0], err)
			}
			data, err := json.MarshalIndent(sess, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <session-id>...",
		Short: "Remove one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := flags.openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			var errs []error
			for _, id := range args {
				if err := app.Engine.DeleteSession(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("remove %q: %w", id, err))
					continue
				}
				fmt.Fprintf(out, "Removed session '%s'\n", id)
			}
			return errors.Join(errs...)
		},
	}

	sessionCmd.AddCommand(lsCmd, inspectCmd, rmCmd)
	return sessionCmd
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/cli"
	"github.com/aretw0/chatflow/internal/config"
)

type rootFlags struct {
	config   string
	envFile  string
	bots     string
	store    string
	logLevel string
	debug    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "chatflow",
		Short: "Chatflow runs bot conversation flows",
		Long: `Chatflow executes bot conversation flows authored as node graphs.
Sessions can be driven from the terminal, over HTTP or as MCP tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Config file (default chatflow.yaml when present)")
	pf.StringVar(&flags.envFile, "env-file", "", "Dotenv file to load (default .env when present)")
	pf.StringVar(&flags.bots, "bots", "", "Directory containing bot definitions")
	pf.StringVar(&flags.store, "store", "", "Session store: memory, file, redis, postgres or sqlite")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		newChatCmd(flags),
		newServeCmd(flags),
		newMCPCmd(flags),
		newValidateCmd(flags),
		newGraphCmd(flags),
		newSessionCmd(flags),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the configuration and applies command line overrides.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	var envFiles []string
	if f.envFile != "" {
		envFiles = append(envFiles, f.envFile)
	}
	cfg, err := config.Load(f.config, envFiles...)
	if err != nil {
		return nil, err
	}
	if f.bots != "" {
		cfg.Bots.Dir = f.bots
	}
	if f.store != "" {
		cfg.Store.Driver = f.store
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, cfg.Validate()
}

// openApp loads the configuration and wires the app. Callers must Close it.
func (f *rootFlags) openApp(ctx context.Context) (*cli.App, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg.Log, f.debug)
	if err != nil {
		return nil, err
	}
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chatflow: %w", err)
	}
	return app, nil
}

// Package main is the dayboard server and its operator commands: serving the
// board API with the scheduler loop, applying schema migrations, forcing
// task migrations, closing past boards and issuing tokens.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/dayboard/internal/config"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// loadFunc loads configuration and the logger built from it.
type loadFunc func() (*config.Config, *slog.Logger, error)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dayboard",
		Short:         "Daily task boards with overnight task migration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: config.yaml in ., ./config or /etc/dayboard)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		l, err := logger.Setup(cfg.Server)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
		}
		l.Debug("configuration loaded",
			slog.Int("port", cfg.Server.Port),
			slog.String("store_backend", cfg.Store.Backend),
			slog.String("ledger_backend", cfg.Ledger.Backend),
			slog.Bool("database_url_present", cfg.Database.URL != ""))
		return cfg, l, nil
	}

	root.AddCommand(
		serveCmd(load),
		migrateCmd(load),
		runMigrationCmd(load),
		closeBoardsCmd(load),
		tokenCmd(load),
	)
	return root
}

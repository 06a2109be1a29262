package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/metis/internal/config"
	"github.com/phrazzld/metis/internal/platform/logger"
	"github.com/phrazzld/metis/internal/platform/migrations"
	"github.com/phrazzld/metis/internal/platform/postgres"
	"github.com/phrazzld/metis/internal/platform/sqlite"
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Manage the record store schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{migrations.CommandUp, migrations.CommandDown, migrations.CommandStatus, migrations.CommandVersion},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			slog.SetDefault(log)

			return runMigration(cmd.Context(), cfg.Store, args[0])
		},
	}
}

// runMigration applies command to the configured SQL store.
func runMigration(ctx context.Context, cfg config.StoreConfig, command string) error {
	switch cfg.Driver {
	case "postgres":
		db, err := openPostgres(ctx, cfg.URL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, command)

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return sqlite.Migrate(ctx, db, command)

	default:
		return fmt.Errorf("store driver %q has no schema to migrate", cfg.Driver)
	}
}

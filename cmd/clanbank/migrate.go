package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/config"
	"github.com/Veraticus/clanbank/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on open; this one is for provisioning a fresh
database or checking where an existing one stands.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "show the current schema version without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	var (
		store *storage.SQLStorage
		err   error
	)
	if appCfg.Database.Driver == config.DriverPostgres {
		store, err = storage.NewPostgresStorage(appCfg.Database.DSN)
	} else {
		store, err = storage.NewSQLiteStorage(appCfg.Database.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	out := cmd.OutOrStdout()
	if status {
		fmt.Fprintf(out, "Driver:          %s\n", store.Driver())
		fmt.Fprintf(out, "Current version: %d\n", current)
		fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
		return nil
	}

	slog.Info("Running database migrations",
		"driver", store.Driver(),
		"from", current,
		"to", storage.ExpectedSchemaVersion)

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(out, "Database schema is at version %d.\n", storage.ExpectedSchemaVersion)
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(tx *sql.Tx, d dialect) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS inventory (
					item_key TEXT PRIMARY KEY,
					quantity INTEGER NOT NULL CHECK (quantity >= 0),
					updated_at ` + d.timestamp() + ` NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS holdings (
					user_id TEXT NOT NULL,
					item_key TEXT NOT NULL,
					quantity INTEGER NOT NULL CHECK (quantity > 0),
					PRIMARY KEY (user_id, item_key)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_holdings_item ON holdings(item_key)`,

				`CREATE TABLE IF NOT EXISTS reputation (
					user_id TEXT PRIMARY KEY,
					points DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (points >= 0)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_reputation_points ON reputation(points)`,

				`CREATE TABLE IF NOT EXISTS history (
					id ` + d.serialKey() + `,
					user_id TEXT NOT NULL,
					created_at ` + d.timestamp() + ` NOT NULL,
					action TEXT NOT NULL,
					item TEXT NOT NULL,
					quantity DOUBLE PRECISION NOT NULL,
					location TEXT NOT NULL DEFAULT '',
					counterparty TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id, id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add learned item categories",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS category_overrides (
					item_key TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					created_at ` + d.timestamp() + ` NOT NULL
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add backup metadata",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS backup_metadata (
					id TEXT PRIMARY KEY,
					created_at ` + d.timestamp() + ` NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN NOT NULL DEFAULT FALSE
				)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.dialect.schemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion > ExpectedSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, ExpectedSchemaVersion)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx, s.dialect); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if execErr := s.dialect.setSchemaVersion(ctx, tx, migration.Version); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"driver", s.dialect.name(),
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.dialect.schemaVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the current schema version.
func (s *SQLStorage) SchemaVersion(ctx context.Context) (int, error) {
	return s.dialect.schemaVersion(ctx, s.db)
}

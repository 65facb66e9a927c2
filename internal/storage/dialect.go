package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// dialect hides the differences between the SQL backends.
type dialect interface {
	name() string
	rebind(query string) string
	// lockKey blocks until the calling transaction owns key. The lock is
	// released when the transaction ends.
	lockKey(ctx context.Context, tx *sql.Tx, key string) error
	schemaVersion(ctx context.Context, q queryable) (int, error)
	setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error
	// Column types for DDL.
	serialKey() string
	timestamp() string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return driverSQLite }

func (sqliteDialect) rebind(query string) string { return query }

// SQLite transactions begin IMMEDIATE on a single connection, so the
// database itself is already the lock.
func (sqliteDialect) lockKey(context.Context, *sql.Tx, string) error { return nil }

func (sqliteDialect) schemaVersion(ctx context.Context, q queryable) (int, error) {
	var version int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (sqliteDialect) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}

func (sqliteDialect) serialKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) timestamp() string { return "DATETIME" }

type postgresDialect struct{}

func (postgresDialect) name() string { return driverPostgres }

func (postgresDialect) rebind(query string) string { return rebindDollar(query) }

func (postgresDialect) lockKey(ctx context.Context, tx *sql.Tx, key string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key)
	return err
}

func (postgresDialect) schemaVersion(ctx context.Context, q queryable) (int, error) {
	if _, err := q.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	)`); err != nil {
		return 0, err
	}

	var version int
	err := q.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (postgresDialect) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schema_version (id, version) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET version = excluded.version
	`, version)
	return err
}

func (postgresDialect) serialKey() string { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) timestamp() string { return "TIMESTAMPTZ" }

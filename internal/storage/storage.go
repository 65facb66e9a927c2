package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// SQLStorage implements service.LedgerStore on SQLite or PostgreSQL.
type SQLStorage struct {
	db            *sql.DB
	dialect       dialect
	overrideCache map[string]model.Category
	dbPath        string
	cacheMutex    sync.RWMutex
}

// Compile-time interface check.
var _ service.LedgerStore = (*SQLStorage)(nil)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStorage opens (creating if needed) a SQLite database at dbPath.
// Use ":memory:" for a throwaway database.
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dsn := dbPath + "?_txlock=immediate"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes every transaction, which is what keeps
	// concurrent deposits on one item from interleaving.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:            db,
		dialect:       sqliteDialect{},
		dbPath:        dbPath,
		overrideCache: make(map[string]model.Category),
	}, nil
}

// NewPostgresStorage connects to PostgreSQL using a lib/pq connection string.
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStorage{
		db:            db,
		dialect:       postgresDialect{},
		overrideCache: make(map[string]model.Category),
	}, nil
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// Driver returns the name of the underlying database driver.
func (s *SQLStorage) Driver() string {
	return s.dialect.name()
}

// NewBackupManager creates a backup manager for this storage instance. Only
// file-backed SQLite databases can be backed up.
func (s *SQLStorage) NewBackupManager() (*BackupManager, error) {
	if s.dialect.name() != driverSQLite || s.dbPath == "" || s.dbPath == ":memory:" {
		return nil, ErrBackupUnsupported
	}
	return NewBackupManager(s.db, s.dbPath)
}

// BeginTx starts a transaction that holds exclusive access to itemKey.
func (s *SQLStorage) BeginTx(ctx context.Context, itemKey string) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if key := model.NormalizeKey(itemKey); key != "" {
		if err := s.dialect.lockKey(ctx, tx, "item:"+key); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to lock item %q: %w", key, err)
		}
	}

	return &sqlTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// q rewrites a query written with ? placeholders for the active dialect.
func (s *SQLStorage) q(query string) string {
	return s.dialect.rebind(query)
}

// rebindDollar rewrites ? placeholders as $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

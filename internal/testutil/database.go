// Package testutil provides shared test setup for ledger stores.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/clanbank/internal/service"
	"github.com/Veraticus/clanbank/internal/storage"
)

// TestDB is an in-memory SQLite ledger store scoped to one test.
type TestDB struct {
	Storage *storage.SQLStorage
	t       *testing.T
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	Fixture        *Fixture
	Path           string
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory store that is closed when the
// test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.Seed(testutil.NewFixture().WithHolding("alice", "gold", 10))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test store with custom options. Path
// defaults to ":memory:".
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if !opts.SkipMigrations {
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}
	if opts.Fixture != nil {
		db.Seed(opts.Fixture)
	}
	return db
}

// Seed applies the fixture or fails the test.
func (db *TestDB) Seed(f *Fixture) {
	db.t.Helper()
	if err := f.Apply(context.Background(), db.Storage); err != nil {
		db.t.Fatalf("failed to seed fixture: %v", err)
	}
}

// WithTransaction runs fn inside a transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background(), "")
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// testStores returns every backend the contract tests run against. The
// PostgreSQL backend only runs when CLANBANK_TEST_POSTGRES_DSN is set.
func testStores(t *testing.T) map[string]func(t *testing.T) service.LedgerStore {
	t.Helper()

	stores := map[string]func(t *testing.T) service.LedgerStore{
		"sqlite": func(t *testing.T) service.LedgerStore {
			t.Helper()
			store, err := NewSQLiteStorage(":memory:")
			require.NoError(t, err)
			require.NoError(t, store.Migrate(context.Background()))
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		"memory": func(t *testing.T) service.LedgerStore {
			t.Helper()
			return NewMemoryStorage()
		},
	}

	if dsn := os.Getenv("CLANBANK_TEST_POSTGRES_DSN"); dsn != "" {
		stores["postgres"] = func(t *testing.T) service.LedgerStore {
			t.Helper()
			store, err := NewPostgresStorage(dsn)
			require.NoError(t, err)
			ctx := context.Background()
			for _, table := range []string{"history", "holdings", "inventory", "reputation", "category_overrides", "backup_metadata", "schema_version"} {
				_, _ = store.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
			}
			require.NoError(t, store.Migrate(ctx))
			t.Cleanup(func() { _ = store.Close() })
			return store
		}
	}

	return stores
}

func forEachStore(t *testing.T, fn func(t *testing.T, store service.LedgerStore)) {
	t.Helper()
	for name, factory := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func commitTx(t *testing.T, store service.LedgerStore, item string, fn func(tx service.Transaction)) {
	t.Helper()
	tx, err := store.BeginTx(context.Background(), item)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestLedgerStore_BalancesAndHoldings(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		_, err := store.GetBalance(ctx, "gold")
		require.ErrorIs(t, err, common.ErrNotFound)

		commitTx(t, store, "gold", func(tx service.Transaction) {
			require.NoError(t, tx.SetBalance(ctx, "Gold", 12))
			require.NoError(t, tx.SetHolding(ctx, "u1", "gold", 7))
			require.NoError(t, tx.SetHolding(ctx, "u2", "gold", 5))
		})

		balance, err := store.GetBalance(ctx, "GOLD")
		require.NoError(t, err)
		assert.Equal(t, "gold", balance.ItemKey)
		assert.Equal(t, 12, balance.Quantity)

		qty, err := store.GetHolding(ctx, "u1", "gold")
		require.NoError(t, err)
		assert.Equal(t, 7, qty)

		qty, err = store.GetHolding(ctx, "u3", "gold")
		require.NoError(t, err)
		assert.Equal(t, 0, qty)

		byItem, err := store.ListHoldingsByItem(ctx, "gold")
		require.NoError(t, err)
		assert.Equal(t, []model.UserHolding{
			{UserID: "u1", ItemKey: "gold", Quantity: 7},
			{UserID: "u2", ItemKey: "gold", Quantity: 5},
		}, byItem)

		balances, err := store.ListBalances(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.InventoryBalance{{ItemKey: "gold", Quantity: 12}}, balances)
	})
}

func TestLedgerStore_HoldingRemovedAtZero(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		commitTx(t, store, "medpen", func(tx service.Transaction) {
			require.NoError(t, tx.SetHolding(ctx, "u1", "medpen", 3))
			require.NoError(t, tx.SetHolding(ctx, "u1", "agricium", 1))
		})
		commitTx(t, store, "medpen", func(tx service.Transaction) {
			require.NoError(t, tx.SetHolding(ctx, "u1", "medpen", 0))
		})

		holdings, err := store.ListHoldingsByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []model.UserHolding{{UserID: "u1", ItemKey: "agricium", Quantity: 1}}, holdings)
	})
}

func TestLedgerStore_ReputationRounding(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		var total float64
		commitTx(t, store, "", func(tx service.Transaction) {
			var err error
			_, err = tx.AddReputation(ctx, "u1", 0.1)
			require.NoError(t, err)
			total, err = tx.AddReputation(ctx, "u1", 0.2)
			require.NoError(t, err)
		})
		assert.Equal(t, 0.3, total)

		points, err := store.GetReputation(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0.3, points)

		points, err = store.GetReputation(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, points)
	})
}

func TestLedgerStore_ListReputation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		commitTx(t, store, "", func(tx service.Transaction) {
			for user, points := range map[string]float64{"a": 1.5, "b": 3, "c": 1.5, "d": 0.25} {
				_, err := tx.AddReputation(ctx, user, points)
				require.NoError(t, err)
			}
		})

		all, err := store.ListReputation(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []model.ReputationAccount{
			{UserID: "b", Points: 3},
			{UserID: "a", Points: 1.5},
			{UserID: "c", Points: 1.5},
			{UserID: "d", Points: 0.25},
		}, all)

		top, err := store.ListReputation(ctx, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "b", top[0].UserID)
	})
}

func TestLedgerStore_HistoryOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()
		now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

		entries := []*model.HistoryEntry{
			{Timestamp: now, UserID: "u1", Action: model.ActionDeposited, Item: "gold", Quantity: 5, Location: "Area18"},
			{Timestamp: now, UserID: "u1", Action: model.ActionReputationAwarded, Item: model.ReputationLabel, Quantity: 0.25},
			{Timestamp: now, UserID: "u2", Action: model.ActionReceived, Item: "gold", Quantity: 2, Counterparty: "u1"},
			{Timestamp: now.Add(time.Minute), UserID: "u1", Action: model.ActionTransferred, Item: "gold", Quantity: -2, Counterparty: "u2"},
		}
		commitTx(t, store, "gold", func(tx service.Transaction) {
			for _, e := range entries {
				require.NoError(t, tx.AppendHistory(ctx, e))
			}
		})
		for _, e := range entries {
			assert.NotZero(t, e.ID, "IDs are known once the transaction commits")
		}

		history, err := store.GetHistory(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, model.ActionDeposited, history[0].Action)
		assert.Equal(t, "Area18", history[0].Location)
		assert.Equal(t, model.ActionReputationAwarded, history[1].Action)
		assert.InDelta(t, 0.25, history[1].Quantity, 1e-9)
		assert.Equal(t, model.ActionTransferred, history[2].Action)
		assert.Equal(t, "u2", history[2].Counterparty)
		assert.True(t, history[0].Timestamp.Equal(now))
		assert.Less(t, history[0].ID, history[1].ID)
		assert.Less(t, history[1].ID, history[2].ID)
	})
}

func TestLedgerStore_CategoryOverrideFirstWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		_, err := store.GetCategoryOverride(ctx, "laser pistol")
		require.ErrorIs(t, err, common.ErrNotFound)

		commitTx(t, store, "laser pistol", func(tx service.Transaction) {
			require.NoError(t, tx.SaveCategoryOverride(ctx, "Laser Pistol", model.CategoryWeapons))
			got, err := tx.GetCategoryOverride(ctx, "laser pistol")
			require.NoError(t, err)
			assert.Equal(t, model.CategoryWeapons, got)
		})
		commitTx(t, store, "laser pistol", func(tx service.Transaction) {
			require.NoError(t, tx.SaveCategoryOverride(ctx, "laser pistol", model.CategoryOther))
		})

		got, err := store.GetCategoryOverride(ctx, "laser pistol")
		require.NoError(t, err)
		assert.Equal(t, model.CategoryWeapons, got)

		all, err := store.GetAllCategoryOverrides(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "laser pistol", all[0].ItemKey)
	})
}

func TestLedgerStore_RollbackDiscardsWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		tx, err := store.BeginTx(ctx, "gold")
		require.NoError(t, err)
		require.NoError(t, tx.SetBalance(ctx, "gold", 9))
		require.NoError(t, tx.SetHolding(ctx, "u1", "gold", 9))
		_, err = tx.AddReputation(ctx, "u1", 0.45)
		require.NoError(t, err)
		require.NoError(t, tx.SaveCategoryOverride(ctx, "gold", model.CategoryMaterials))

		// The transaction sees its own writes.
		b, err := tx.GetBalance(ctx, "gold")
		require.NoError(t, err)
		assert.Equal(t, 9, b.Quantity)

		require.NoError(t, tx.Rollback())

		_, err = store.GetBalance(ctx, "gold")
		require.ErrorIs(t, err, common.ErrNotFound)
		points, err := store.GetReputation(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, points)
		_, err = store.GetCategoryOverride(ctx, "gold")
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestLedgerStore_ItemLockBlocksSecondTransaction(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()

		first, err := store.BeginTx(ctx, "gold")
		require.NoError(t, err)

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = store.BeginTx(waitCtx, "gold")
		require.Error(t, err)

		require.NoError(t, first.Rollback())

		second, err := store.BeginTx(ctx, "gold")
		require.NoError(t, err)
		require.NoError(t, second.Rollback())
	})
}

func TestLedgerStore_ConcurrentIncrements(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()
		const workers = 10

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- increment(ctx, store)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		b, err := store.GetBalance(ctx, "gold")
		require.NoError(t, err)
		assert.Equal(t, workers, b.Quantity)
	})
}

func increment(ctx context.Context, store service.LedgerStore) error {
	tx, err := store.BeginTx(ctx, "gold")
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	current := 0
	b, err := tx.GetBalance(ctx, "gold")
	switch {
	case err == nil:
		current = b.Quantity
	case !errors.Is(err, common.ErrNotFound):
		return err
	}

	if err := tx.SetBalance(ctx, "gold", current+1); err != nil {
		return err
	}
	return tx.Commit()
}

func TestLedgerStore_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store service.LedgerStore) {
		ctx := context.Background()
		tx, err := store.BeginTx(ctx, "gold")
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		require.ErrorIs(t, tx.SetBalance(ctx, "gold", -1), ErrNegativeQuantity)
		require.ErrorIs(t, tx.SetHolding(ctx, "", "gold", 1), ErrEmptyString)
		_, err = tx.AddReputation(ctx, "u1", -0.5)
		require.ErrorIs(t, err, ErrInvalidPoints)
		require.ErrorIs(t, tx.AppendHistory(ctx, &model.HistoryEntry{UserID: "u1", Action: "Añadido", Item: "gold", Timestamp: time.Now()}), ErrInvalidHistory)
		require.ErrorIs(t, tx.AppendHistory(ctx, nil), ErrNilParameter)
		require.ErrorIs(t, tx.SaveCategoryOverride(ctx, "gold", model.CategoryUnclassified), ErrInvalidCategory)
	})
}

func TestMemoryStorage_HistoryContiguousPerTransaction(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	entry := func(item string, action model.HistoryAction) *model.HistoryEntry {
		return &model.HistoryEntry{Timestamp: time.Now(), UserID: "u1", Action: action, Item: item, Quantity: 1}
	}

	gold, err := store.BeginTx(ctx, "gold")
	require.NoError(t, err)
	medpen, err := store.BeginTx(ctx, "medpen")
	require.NoError(t, err)

	require.NoError(t, gold.AppendHistory(ctx, entry("gold", model.ActionDeposited)))
	require.NoError(t, medpen.AppendHistory(ctx, entry("medpen", model.ActionDeposited)))
	require.NoError(t, medpen.AppendHistory(ctx, entry("medpen", model.ActionReputationAwarded)))
	require.NoError(t, gold.AppendHistory(ctx, entry("gold", model.ActionReputationAwarded)))

	require.NoError(t, medpen.Commit())
	require.NoError(t, gold.Commit())

	history, err := store.GetHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 4)

	got := make([]string, 0, len(history))
	for i, e := range history {
		got = append(got, e.Item+":"+string(e.Action))
		if i > 0 {
			assert.Greater(t, e.ID, history[i-1].ID)
		}
	}
	assert.Equal(t, []string{
		"medpen:" + string(model.ActionDeposited),
		"medpen:" + string(model.ActionReputationAwarded),
		"gold:" + string(model.ActionDeposited),
		"gold:" + string(model.ActionReputationAwarded),
	}, got)
}

// lockRecorder records the advisory locks a transaction asks for.
type lockRecorder struct {
	sqliteDialect
	mu   sync.Mutex
	keys []string
}

func (d *lockRecorder) lockKey(_ context.Context, _ *sql.Tx, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func TestSQLStorage_HistoryLockHeldUntilCommit(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	rec := &lockRecorder{}
	store.dialect = rec

	now := time.Now()
	commitTx(t, store, "gold", func(tx service.Transaction) {
		require.NoError(t, tx.AppendHistory(ctx, &model.HistoryEntry{Timestamp: now, UserID: "u1", Action: model.ActionDeposited, Item: "gold", Quantity: 1}))
		_, err := tx.AddReputation(ctx, "u1", 0.05)
		require.NoError(t, err)
		require.NoError(t, tx.AppendHistory(ctx, &model.HistoryEntry{Timestamp: now, UserID: "u1", Action: model.ActionReputationAwarded, Item: model.ReputationLabel, Quantity: 0.05}))
	})
	assert.Equal(t, []string{"item:gold", historyLockKey}, rec.keys)

	rec.keys = nil
	commitTx(t, store, "medpen", func(tx service.Transaction) {
		_, err := tx.AddReputation(ctx, "u1", 0.01)
		require.NoError(t, err)
	})
	assert.Equal(t, []string{"item:medpen", historyLockKey}, rec.keys, "reputation writes take the history lock first")
}

func TestSQLStorage_Migrate(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
	assert.Equal(t, driverSQLite, store.Driver())

	counts, err := store.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts["history"])
}

func TestSQLStorage_OverrideCacheWarm(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	_, err = store.db.ExecContext(ctx, `INSERT INTO category_overrides (item_key, category, created_at) VALUES ('salvo frag', 'Armas', ?)`, time.Now())
	require.NoError(t, err)

	require.NoError(t, store.WarmOverrideCache(ctx))
	got, ok := store.getCachedOverride("Salvo Frag")
	require.True(t, ok)
	assert.Equal(t, model.CategoryWeapons, got)
}

func TestRebindDollar(t *testing.T) {
	assert.Equal(t,
		"SELECT 1 FROM holdings WHERE user_id = $1 AND item_key = $2",
		rebindDollar("SELECT 1 FROM holdings WHERE user_id = ? AND item_key = ?"))
	assert.Equal(t, "SELECT 1", rebindDollar("SELECT 1"))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "sqlite locked wrapped", err: fmt.Errorf("failed: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), want: true},
		{name: "sqlite constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "postgres serialization", err: &pq.Error{Code: "40001"}, want: true},
		{name: "postgres deadlock", err: &pq.Error{Code: "40P01"}, want: true},
		{name: "postgres connection", err: &pq.Error{Code: "08006"}, want: true},
		{name: "postgres unique violation", err: &pq.Error{Code: "23505"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

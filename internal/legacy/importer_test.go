package legacy

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/storage"
	"github.com/Veraticus/clanbank/internal/testutil"
)

var legacySchema = []string{
	`CREATE TABLE inventario (item TEXT PRIMARY KEY, cantidad INTEGER NOT NULL DEFAULT 0)`,
	`CREATE TABLE registro_usuarios (user_id INTEGER, item TEXT, cantidad INTEGER NOT NULL DEFAULT 0, PRIMARY KEY (user_id, item))`,
	`CREATE TABLE historial (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, timestamp TEXT, accion TEXT, item TEXT, cantidad REAL, ubicacion TEXT)`,
	`CREATE TABLE reputacion (user_id INTEGER PRIMARY KEY, puntos REAL NOT NULL DEFAULT 0)`,
	`CREATE TABLE item_categoria (item TEXT PRIMARY KEY, categoria TEXT NOT NULL)`,
}

var legacyRows = []string{
	`INSERT INTO inventario VALUES ('P4-AR Rifle', 20), ('p4-ar rifle', 5), ('Strange Relic', 3), ('Empty', 0)`,
	`INSERT INTO registro_usuarios VALUES (111, 'P4-AR Rifle', 20), (222, 'p4-ar rifle', 5), (111, 'Strange Relic', 3)`,
	`INSERT INTO reputacion VALUES (111, 1.25), (222, 0.25)`,
	`INSERT INTO item_categoria VALUES ('Strange Relic', 'Otros'), ('Moon Dust', 'Polvo')`,
	`INSERT INTO historial (user_id, timestamp, accion, item, cantidad, ubicacion) VALUES
		(111, '14/03/2025 18:30:00', 'Añadido', 'P4-AR Rifle', 20, 'Area18'),
		(111, '14/03/2025 18:30:00', 'Ganó Reputación', 'Reputación', 1.0, NULL),
		(111, '15/03/2025 09:00:00', 'Retirado', 'Strange Relic', -1, NULL),
		(111, '16/03/2025 10:00:00', 'Transferido', 'P4-AR Rifle → Bob', -2, NULL),
		(222, '16/03/2025 10:00:00', 'Recibido', 'P4-AR Rifle ← Alice', 2, NULL),
		(111, 'yesterday', 'Añadido', 'Gold', 1, NULL),
		(111, '17/03/2025 10:00:00', 'Bailó', 'Gold', 1, NULL)`,
}

func newLegacyDB(t *testing.T, stmts ...[]string) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventario.db")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, group := range stmts {
		for _, stmt := range group {
			_, err := raw.Exec(stmt)
			require.NoError(t, err)
		}
	}
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestImport(t *testing.T) {
	src := newLegacyDB(t, legacySchema, legacyRows)
	dst := testutil.SetupTestDB(t).Storage
	ctx := context.Background()

	var progress bytes.Buffer
	summary, err := Import(ctx, src, dst, Options{Progress: &progress, Location: time.UTC})
	require.NoError(t, err)

	assert.Equal(t, &Summary{Items: 2, Holdings: 3, Reputation: 2, History: 5, Overrides: 2, Skipped: 2}, summary)
	assert.NotEmpty(t, progress.String())

	bal, err := dst.GetBalance(ctx, "p4-ar rifle")
	require.NoError(t, err)
	assert.Equal(t, 25, bal.Quantity)

	held, err := dst.GetHolding(ctx, "222", "p4-ar rifle")
	require.NoError(t, err)
	assert.Equal(t, 5, held)

	rep, err := dst.GetReputation(ctx, "111")
	require.NoError(t, err)
	assert.InDelta(t, 1.25, rep, 1e-9)

	cat, err := dst.GetCategoryOverride(ctx, "moon dust")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, cat)

	history, err := dst.GetHistory(ctx, "111")
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, model.ActionDeposited, history[0].Action)
	assert.Equal(t, "Area18", history[0].Location)
	assert.True(t, history[0].Timestamp.Equal(time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)))
	assert.Equal(t, model.ActionReputationAwarded, history[1].Action)
	assert.Equal(t, model.ReputationLabel, history[1].Item)
	assert.Equal(t, model.ActionWithdrawn, history[2].Action)
	assert.InDelta(t, -1, history[2].Quantity, 1e-9)
	assert.Equal(t, model.ActionTransferred, history[3].Action)
	assert.Equal(t, "p4-ar rifle", history[3].Item)
	assert.Equal(t, "Bob", history[3].Counterparty)

	received, err := dst.GetHistory(ctx, "222")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, model.ActionReceived, received[0].Action)
	assert.Equal(t, "Alice", received[0].Counterparty)
	assert.InDelta(t, 2, received[0].Quantity, 1e-9)
}

func TestImport_RefusesNonEmptyDestination(t *testing.T) {
	src := newLegacyDB(t, legacySchema, legacyRows)
	dst := storage.NewMemoryStorage()
	require.NoError(t, testutil.NewFixture().WithHolding("1", "gold", 1).Apply(context.Background(), dst))

	_, err := Import(context.Background(), src, dst, Options{})
	require.ErrorIs(t, err, ErrDestinationNotEmpty)

	_, err = Import(context.Background(), src, dst, Options{Force: true})
	require.NoError(t, err)
}

func TestImport_NotLegacy(t *testing.T) {
	src := newLegacyDB(t, []string{`CREATE TABLE other (id INTEGER)`})

	_, err := Import(context.Background(), src, storage.NewMemoryStorage(), Options{})
	require.ErrorIs(t, err, ErrNotLegacyDatabase)
}

func TestImport_WithoutCategoryTable(t *testing.T) {
	src := newLegacyDB(t, legacySchema[:4], []string{
		`INSERT INTO inventario VALUES ('Gold', 7)`,
		`INSERT INTO registro_usuarios VALUES (1, 'Gold', 7)`,
	})
	dst := storage.NewMemoryStorage()

	summary, err := Import(context.Background(), src, dst, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)
	assert.Zero(t, summary.Overrides)
}

func TestConvertHistory(t *testing.T) {
	tests := []struct {
		name   string
		in     legacyHistory
		action model.HistoryAction
		item   string
		qty    float64
		ok     bool
	}{
		{
			name:   "deposit",
			in:     legacyHistory{timestamp: "01/02/2025 10:00:00", action: "Añadido", item: "Gold", quantity: 4},
			action: model.ActionDeposited, item: "gold", qty: 4, ok: true,
		},
		{
			name:   "withdrawal stored positive",
			in:     legacyHistory{timestamp: "01/02/2025 10:00:00", action: "Retirado", item: "Gold", quantity: 4},
			action: model.ActionWithdrawn, item: "gold", qty: -4, ok: true,
		},
		{
			name:   "reputation transfer",
			in:     legacyHistory{timestamp: "01/02/2025 10:00:00", action: "Transferido", item: "Reputación → Bob", quantity: -1.5},
			action: model.ActionTransferred, item: model.ReputationLabel, qty: -1.5, ok: true,
		},
		{
			name: "bad timestamp",
			in:   legacyHistory{timestamp: "2025-02-01", action: "Añadido", item: "Gold", quantity: 1},
		},
		{
			name: "unknown action",
			in:   legacyHistory{timestamp: "01/02/2025 10:00:00", action: "Otro", item: "Gold", quantity: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := convertHistory(tt.in, time.UTC)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.action, entry.Action)
			assert.Equal(t, tt.item, entry.Item)
			assert.InDelta(t, tt.qty, entry.Quantity, 1e-9)
			assert.Equal(t, "0", entry.UserID)
		})
	}
}

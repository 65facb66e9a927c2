package legacy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/clanbank/internal/model"
)

func readSnapshot(ctx context.Context, db *sql.DB) (*snapshot, error) {
	for _, table := range requiredTables {
		ok, err := hasTable(ctx, db, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: missing table %s", ErrNotLegacyDatabase, table)
		}
	}

	snap := &snapshot{
		balances:   map[string]int{},
		holdings:   map[[2]string]int{},
		reputation: map[string]float64{},
		overrides:  map[string]string{},
	}

	if err := readBalances(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := readHoldings(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := readReputation(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := readOverrides(ctx, db, snap); err != nil {
		return nil, err
	}
	if err := readHistory(ctx, db, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func hasTable(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect legacy schema: %w", err)
	}
	return n > 0, nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid        int
			name, kind string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Legacy item names kept their original casing, so different spellings of
// one item are merged under its normalized key.
func readBalances(ctx context.Context, db *sql.DB, snap *snapshot) error {
	rows, err := db.QueryContext(ctx, `SELECT item, cantidad FROM inventario`)
	if err != nil {
		return fmt.Errorf("failed to read inventario: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			item string
			qty  int
		)
		if err := rows.Scan(&item, &qty); err != nil {
			return fmt.Errorf("failed to scan inventario: %w", err)
		}
		key := model.NormalizeKey(item)
		if key == "" || qty <= 0 {
			continue
		}
		snap.balances[key] += qty
	}
	return rows.Err()
}

func readHoldings(ctx context.Context, db *sql.DB, snap *snapshot) error {
	rows, err := db.QueryContext(ctx, `SELECT user_id, item, cantidad FROM registro_usuarios`)
	if err != nil {
		return fmt.Errorf("failed to read registro_usuarios: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			userID int64
			item   string
			qty    int
		)
		if err := rows.Scan(&userID, &item, &qty); err != nil {
			return fmt.Errorf("failed to scan registro_usuarios: %w", err)
		}
		key := model.NormalizeKey(item)
		if key == "" || qty <= 0 {
			continue
		}
		snap.holdings[[2]string{userKey(userID), key}] += qty
	}
	return rows.Err()
}

func readReputation(ctx context.Context, db *sql.DB, snap *snapshot) error {
	rows, err := db.QueryContext(ctx, `SELECT user_id, puntos FROM reputacion`)
	if err != nil {
		return fmt.Errorf("failed to read reputacion: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			userID int64
			points float64
		)
		if err := rows.Scan(&userID, &points); err != nil {
			return fmt.Errorf("failed to scan reputacion: %w", err)
		}
		snap.reputation[userKey(userID)] += points
	}
	return rows.Err()
}

// item_categoria was added in a later bot version and may be absent.
func readOverrides(ctx context.Context, db *sql.DB, snap *snapshot) error {
	ok, err := hasTable(ctx, db, "item_categoria")
	if err != nil || !ok {
		return err
	}

	rows, err := db.QueryContext(ctx, `SELECT item, categoria FROM item_categoria`)
	if err != nil {
		return fmt.Errorf("failed to read item_categoria: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item, category string
		if err := rows.Scan(&item, &category); err != nil {
			return fmt.Errorf("failed to scan item_categoria: %w", err)
		}
		key := model.NormalizeKey(item)
		if key == "" {
			continue
		}
		if _, seen := snap.overrides[key]; !seen {
			snap.overrides[key] = category
		}
	}
	return rows.Err()
}

func readHistory(ctx context.Context, db *sql.DB, snap *snapshot) error {
	related, err := hasColumn(ctx, db, "historial", "usuario_relacionado")
	if err != nil {
		return err
	}

	query := `SELECT user_id, timestamp, accion, item, cantidad, ubicacion, NULL FROM historial ORDER BY id`
	if related {
		query = `SELECT user_id, timestamp, accion, item, cantidad, ubicacion, usuario_relacionado FROM historial ORDER BY id`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read historial: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			h                          legacyHistory
			ts, action, item, loc, rel sql.NullString
			qty                        sql.NullFloat64
		)
		if err := rows.Scan(&h.userID, &ts, &action, &item, &qty, &loc, &rel); err != nil {
			return fmt.Errorf("failed to scan historial: %w", err)
		}
		h.timestamp = ts.String
		h.action = action.String
		h.item = item.String
		h.quantity = qty.Float64
		h.location = loc.String
		h.related = rel.String
		snap.history = append(snap.history, h)
	}
	return rows.Err()
}

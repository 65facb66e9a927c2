package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
)

// GetBalance returns the clan-wide quantity of an item.
func (s *SQLStorage) GetBalance(ctx context.Context, itemKey string) (*model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}
	return s.getBalanceTx(ctx, s.db, itemKey)
}

func (s *SQLStorage) getBalanceTx(ctx context.Context, q queryable, itemKey string) (*model.InventoryBalance, error) {
	balance := model.InventoryBalance{ItemKey: model.NormalizeKey(itemKey)}

	err := q.QueryRowContext(ctx, s.q(`
		SELECT quantity FROM inventory WHERE item_key = ?
	`), balance.ItemKey).Scan(&balance.Quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return &balance, nil
}

// ListBalances returns every inventory row ordered by item key.
func (s *SQLStorage) ListBalances(ctx context.Context) ([]model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listBalancesTx(ctx, s.db)
}

func (s *SQLStorage) listBalancesTx(ctx context.Context, q queryable) ([]model.InventoryBalance, error) {
	rows, err := q.QueryContext(ctx, `SELECT item_key, quantity FROM inventory ORDER BY item_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var balances []model.InventoryBalance
	for rows.Next() {
		var b model.InventoryBalance
		if err := rows.Scan(&b.ItemKey, &b.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

func (s *SQLStorage) setBalanceTx(ctx context.Context, q queryable, itemKey string, quantity int) error {
	_, err := q.ExecContext(ctx, s.q(`
		INSERT INTO inventory (item_key, quantity, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at
	`), model.NormalizeKey(itemKey), quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// GetHolding returns how much of an item a member holds.
func (s *SQLStorage) GetHolding(ctx context.Context, userID, itemKey string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return 0, err
	}
	return s.getHoldingTx(ctx, s.db, userID, itemKey)
}

func (s *SQLStorage) getHoldingTx(ctx context.Context, q queryable, userID, itemKey string) (int, error) {
	var quantity int
	err := q.QueryRowContext(ctx, s.q(`
		SELECT quantity FROM holdings WHERE user_id = ? AND item_key = ?
	`), userID, model.NormalizeKey(itemKey)).Scan(&quantity)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get holding: %w", err)
	}
	return quantity, nil
}

// ListHoldingsByUser returns a member's holdings ordered by item key.
func (s *SQLStorage) ListHoldingsByUser(ctx context.Context, userID string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.listHoldingsTx(ctx, s.db, holdingsByUserQuery, userID)
}

// ListHoldingsByItem returns every member's share of an item, largest first.
func (s *SQLStorage) ListHoldingsByItem(ctx context.Context, itemKey string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}
	return s.listHoldingsTx(ctx, s.db, holdingsByItemQuery, model.NormalizeKey(itemKey))
}

const holdingsByUserQuery = `
	SELECT user_id, item_key, quantity FROM holdings
	WHERE user_id = ?
	ORDER BY item_key
`

const holdingsByItemQuery = `
	SELECT user_id, item_key, quantity FROM holdings
	WHERE item_key = ?
	ORDER BY quantity DESC, user_id
`

func (s *SQLStorage) listHoldingsTx(ctx context.Context, q queryable, query string, arg string) ([]model.UserHolding, error) {
	rows, err := q.QueryContext(ctx, s.q(query), arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var holdings []model.UserHolding
	for rows.Next() {
		var h model.UserHolding
		if err := rows.Scan(&h.UserID, &h.ItemKey, &h.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	return holdings, rows.Err()
}

func (s *SQLStorage) setHoldingTx(ctx context.Context, q queryable, userID, itemKey string, quantity int) error {
	itemKey = model.NormalizeKey(itemKey)

	if quantity == 0 {
		if _, err := q.ExecContext(ctx, s.q(`
			DELETE FROM holdings WHERE user_id = ? AND item_key = ?
		`), userID, itemKey); err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		return nil
	}

	_, err := q.ExecContext(ctx, s.q(`
		INSERT INTO holdings (user_id, item_key, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, item_key) DO UPDATE SET quantity = excluded.quantity
	`), userID, itemKey, quantity)
	if err != nil {
		return fmt.Errorf("failed to set holding: %w", err)
	}
	return nil
}

// GetReputation returns a member's reputation, or 0 without an account.
func (s *SQLStorage) GetReputation(ctx context.Context, userID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	return s.getReputationTx(ctx, s.db, userID)
}

func (s *SQLStorage) getReputationTx(ctx context.Context, q queryable, userID string) (float64, error) {
	var points float64
	err := q.QueryRowContext(ctx, s.q(`
		SELECT points FROM reputation WHERE user_id = ?
	`), userID).Scan(&points)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get reputation: %w", err)
	}
	return points, nil
}

// ListReputation returns accounts ordered by points descending.
func (s *SQLStorage) ListReputation(ctx context.Context, limit int) ([]model.ReputationAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listReputationTx(ctx, s.db, limit)
}

func (s *SQLStorage) listReputationTx(ctx context.Context, q queryable, limit int) ([]model.ReputationAccount, error) {
	query := `SELECT user_id, points FROM reputation ORDER BY points DESC, user_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reputation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.ReputationAccount
	for rows.Next() {
		var a model.ReputationAccount
		if err := rows.Scan(&a.UserID, &a.Points); err != nil {
			return nil, fmt.Errorf("failed to scan reputation: %w", err)
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// addReputationTx adds points atomically, then rewrites the total rounded to
// two decimals so float drift never accumulates.
func (s *SQLStorage) addReputationTx(ctx context.Context, q queryable, userID string, points float64) (float64, error) {
	var raw float64
	err := q.QueryRowContext(ctx, s.q(`
		INSERT INTO reputation (user_id, points)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET points = reputation.points + excluded.points
		RETURNING points
	`), userID, points).Scan(&raw)
	if err != nil {
		return 0, fmt.Errorf("failed to add reputation: %w", err)
	}

	total, _ := decimal.NewFromFloat(raw).Round(2).Float64()
	if total != raw {
		if _, err := q.ExecContext(ctx, s.q(`
			UPDATE reputation SET points = ? WHERE user_id = ?
		`), total, userID); err != nil {
			return 0, fmt.Errorf("failed to round reputation: %w", err)
		}
	}

	return total, nil
}

// GetHistory returns a member's history in insertion order.
func (s *SQLStorage) GetHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.getHistoryTx(ctx, s.db, userID)
}

func (s *SQLStorage) getHistoryTx(ctx context.Context, q queryable, userID string) ([]model.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, s.q(`
		SELECT id, user_id, created_at, action, item, quantity, location, counterparty
		FROM history
		WHERE user_id = ?
		ORDER BY id
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var action string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &action, &e.Item, &e.Quantity, &e.Location, &e.Counterparty); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Action = model.HistoryAction(action)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *SQLStorage) appendHistoryTx(ctx context.Context, q queryable, entry *model.HistoryEntry) error {
	err := q.QueryRowContext(ctx, s.q(`
		INSERT INTO history (user_id, created_at, action, item, quantity, location, counterparty)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		entry.UserID,
		entry.Timestamp.UTC(),
		string(entry.Action),
		entry.Item,
		entry.Quantity,
		entry.Location,
		entry.Counterparty,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in each ledger table.
func (s *SQLStorage) CountRows(ctx context.Context) (map[string]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return countRows(ctx, s.db)
}

func countRows(ctx context.Context, q queryable) (map[string]int, error) {
	counts := make(map[string]int)

	// Use explicit queries for each table to avoid SQL injection
	tableQueries := map[string]string{
		"inventory":          "SELECT COUNT(*) FROM inventory",
		"holdings":           "SELECT COUNT(*) FROM holdings",
		"reputation":         "SELECT COUNT(*) FROM reputation",
		"history":            "SELECT COUNT(*) FROM history",
		"category_overrides": "SELECT COUNT(*) FROM category_overrides",
	}

	for table, query := range tableQueries {
		var count int
		if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
			// Table might not exist in older schemas
			counts[table] = 0
			continue
		}
		counts[table] = count
	}

	return counts, nil
}

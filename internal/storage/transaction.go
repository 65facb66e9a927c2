package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// sqlTransaction wraps sql.Tx to implement service.Transaction.
type sqlTransaction struct {
	tx      *sql.Tx
	storage *SQLStorage
	learned map[string]model.Category
	// historyLocked is set once the transaction owns the history lock.
	historyLocked bool
}

var _ service.Transaction = (*sqlTransaction)(nil)

// historyLockKey guards history ID assignment. Item locks use the "item:"
// prefix, so the two never collide.
const historyLockKey = "history"


// Commit commits the transaction and publishes learned categories to the
// override cache.
func (t *sqlTransaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	for key, category := range t.learned {
		t.storage.cacheOverride(key, category)
	}
	return nil
}

func (t *sqlTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqlTransaction) GetBalance(ctx context.Context, itemKey string) (*model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}
	return t.storage.getBalanceTx(ctx, t.tx, itemKey)
}

func (t *sqlTransaction) ListBalances(ctx context.Context) ([]model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listBalancesTx(ctx, t.tx)
}

func (t *sqlTransaction) SetBalance(ctx context.Context, itemKey string, quantity int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return t.storage.setBalanceTx(ctx, t.tx, itemKey, quantity)
}

func (t *sqlTransaction) GetHolding(ctx context.Context, userID, itemKey string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return 0, err
	}
	return t.storage.getHoldingTx(ctx, t.tx, userID, itemKey)
}

func (t *sqlTransaction) ListHoldingsByUser(ctx context.Context, userID string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return t.storage.listHoldingsTx(ctx, t.tx, holdingsByUserQuery, userID)
}

func (t *sqlTransaction) ListHoldingsByItem(ctx context.Context, itemKey string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}
	return t.storage.listHoldingsTx(ctx, t.tx, holdingsByItemQuery, model.NormalizeKey(itemKey))
}

func (t *sqlTransaction) SetHolding(ctx context.Context, userID, itemKey string, quantity int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return t.storage.setHoldingTx(ctx, t.tx, userID, itemKey, quantity)
}

func (t *sqlTransaction) GetReputation(ctx context.Context, userID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	return t.storage.getReputationTx(ctx, t.tx, userID)
}

func (t *sqlTransaction) ListReputation(ctx context.Context, limit int) ([]model.ReputationAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.listReputationTx(ctx, t.tx, limit)
}

func (t *sqlTransaction) AddReputation(ctx context.Context, userID string, points float64) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validatePoints(points); err != nil {
		return 0, err
	}
	if err := t.lockHistory(ctx); err != nil {
		return 0, err
	}
	return t.storage.addReputationTx(ctx, t.tx, userID, points)
}

func (t *sqlTransaction) GetHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return t.storage.getHistoryTx(ctx, t.tx, userID)
}

func (t *sqlTransaction) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateHistoryEntry(entry); err != nil {
		return err
	}
	if err := t.lockHistory(ctx); err != nil {
		return err
	}
	return t.storage.appendHistoryTx(ctx, t.tx, entry)
}

// lockHistory takes the history lock once per transaction and holds it until
// commit, so one transaction's history IDs are contiguous. Reputation writes
// take it too, which keeps the order item → history → reputation row.
func (t *sqlTransaction) lockHistory(ctx context.Context) error {
	if t.historyLocked {
		return nil
	}
	if err := t.storage.dialect.lockKey(ctx, t.tx, historyLockKey); err != nil {
		return fmt.Errorf("failed to lock history: %w", err)
	}
	t.historyLocked = true
	return nil
}

func (t *sqlTransaction) GetCategoryOverride(ctx context.Context, itemKey string) (model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return model.CategoryUnclassified, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return model.CategoryUnclassified, err
	}
	if category, ok := t.storage.getCachedOverride(itemKey); ok {
		return category, nil
	}
	return t.storage.getCategoryOverrideTx(ctx, t.tx, itemKey)
}

func (t *sqlTransaction) GetAllCategoryOverrides(ctx context.Context) ([]model.CategoryOverride, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAllCategoryOverridesTx(ctx, t.tx)
}

func (t *sqlTransaction) SaveCategoryOverride(ctx context.Context, itemKey string, category model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateCategory(category); err != nil {
		return err
	}

	written, err := t.storage.saveCategoryOverrideTx(ctx, t.tx, itemKey, category)
	if err != nil || !written {
		return err
	}

	if t.learned == nil {
		t.learned = make(map[string]model.Category)
	}
	t.learned[model.NormalizeKey(itemKey)] = category
	return nil
}

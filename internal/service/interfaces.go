// Package service defines the interfaces shared between the ledger engine
// and its persistence backends.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/clanbank/internal/model"
)

// LedgerReader is the read side of the ledger store. Both the store and an
// open transaction implement it; reads through a transaction see that
// transaction's own uncommitted writes.
type LedgerReader interface {
	// GetBalance returns common.ErrNotFound when the item was never deposited.
	GetBalance(ctx context.Context, itemKey string) (*model.InventoryBalance, error)
	ListBalances(ctx context.Context) ([]model.InventoryBalance, error)

	// GetHolding returns 0 when the member holds none of the item.
	GetHolding(ctx context.Context, userID, itemKey string) (int, error)
	ListHoldingsByUser(ctx context.Context, userID string) ([]model.UserHolding, error)
	ListHoldingsByItem(ctx context.Context, itemKey string) ([]model.UserHolding, error)

	// GetReputation returns 0 for members with no account yet.
	GetReputation(ctx context.Context, userID string) (float64, error)
	// ListReputation returns accounts ordered by points descending. A
	// non-positive limit returns every account.
	ListReputation(ctx context.Context, limit int) ([]model.ReputationAccount, error)

	GetHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error)

	// GetCategoryOverride returns common.ErrNotFound when nothing was learned.
	GetCategoryOverride(ctx context.Context, itemKey string) (model.Category, error)
	GetAllCategoryOverrides(ctx context.Context) ([]model.CategoryOverride, error)
}

// LedgerWriter mutates ledger rows. Writers are only reachable through a
// Transaction so every mutation is all-or-nothing.
type LedgerWriter interface {
	SetBalance(ctx context.Context, itemKey string, quantity int) error
	// SetHolding deletes the row when quantity is zero.
	SetHolding(ctx context.Context, userID, itemKey string, quantity int) error
	// AddReputation adds points to a member's account and returns the new
	// total rounded to two decimals.
	AddReputation(ctx context.Context, userID string, points float64) (float64, error)
	// AppendHistory inserts the entry and sets its ID.
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	// SaveCategoryOverride stores a learned category. An existing override
	// is left untouched.
	SaveCategoryOverride(ctx context.Context, itemKey string, category model.Category) error
}

// Transaction is an open unit of work holding exclusive access to one item.
type Transaction interface {
	LedgerReader
	LedgerWriter
	Commit() error
	Rollback() error
}

// LedgerStore defines the contract for our persistence layer.
type LedgerStore interface {
	LedgerReader

	// BeginTx starts a transaction that serializes against every other
	// transaction on the same itemKey until it commits or rolls back. An
	// empty itemKey is allowed for work that touches no inventory row.
	BeginTx(ctx context.Context, itemKey string) (Transaction, error)
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

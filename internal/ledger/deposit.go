package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// DepositResult describes a completed deposit. Actual may be lower than
// Requested when the category ceiling clamps the deposit; Truncated is set
// in that case.
type DepositResult struct {
	Item              string
	DisplayName       string
	Category          model.Category
	Requested         int
	Actual            int
	Balance           int
	Limit             int
	Holding           int
	ReputationAwarded float64
	ReputationTotal   float64
	Truncated         bool
}

type depositOptions struct {
	location     string
	categoryHint string
}

// DepositOption customizes a deposit.
type DepositOption func(*depositOptions)

// WithLocation records where the items were handed in.
func WithLocation(location string) DepositOption {
	return func(o *depositOptions) {
		o.location = strings.TrimSpace(location)
	}
}

// WithCategoryHint supplies a category for items the ledger has never
// classified, typically the catalog category of the match the member picked.
func WithCategoryHint(category string) DepositOption {
	return func(o *depositOptions) {
		o.categoryHint = strings.TrimSpace(category)
	}
}

// Deposit adds quantity units of item to the clan inventory on behalf of
// userID and awards reputation for what was actually stored.
func (e *Engine) Deposit(ctx context.Context, userID, item string, quantity int, opts ...DepositOption) (*DepositResult, error) {
	start := time.Now()
	result, err := e.deposit(ctx, strings.TrimSpace(userID), e.resolveKey(item), quantity, opts)
	e.cfg.Metrics.observe("deposit", start, err)
	if err != nil {
		slog.Debug("Deposit rejected", "user", userID, "item", item, "quantity", quantity, "error", err)
		return nil, err
	}

	e.cfg.Metrics.addUnits("deposit", result.Actual)
	e.cfg.Metrics.addReputation(result.ReputationAwarded)
	slog.Info("Deposit recorded",
		"user", userID,
		"item", result.Item,
		"requested", result.Requested,
		"actual", result.Actual,
		"balance", result.Balance,
		"limit", result.Limit,
		"reputation", result.ReputationAwarded)
	return result, nil
}

func (e *Engine) deposit(ctx context.Context, userID, itemKey string, quantity int, opts []DepositOption) (*DepositResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireItem(itemKey); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	var o depositOptions
	for _, opt := range opts {
		opt(&o)
	}

	var result *DepositResult
	err := e.withTx(ctx, itemKey, func(ctx context.Context, tx service.Transaction) error {
		r, err := e.applyDeposit(ctx, tx, userID, itemKey, quantity, o)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) applyDeposit(ctx context.Context, tx service.Transaction, userID, itemKey string, quantity int, o depositOptions) (*DepositResult, error) {
	category, err := e.policy.CategoryOf(ctx, tx, itemKey)
	if err != nil {
		return nil, err
	}
	learned := !category.IsClassified()
	if learned {
		category = e.inferCategory(itemKey, o.categoryHint)
	}

	limit := e.policy.LimitFor(category)
	balance, _, err := balanceOf(ctx, tx, itemKey)
	if err != nil {
		return nil, err
	}

	actual := min(quantity, limit-balance)
	if actual <= 0 {
		return nil, fmt.Errorf("%w: %s holds %d of %d", ErrStorageFull, itemKey, balance, limit)
	}

	if learned {
		if err := e.policy.SetCategory(ctx, tx, itemKey, category); err != nil {
			return nil, err
		}
	}

	if err := tx.SetBalance(ctx, itemKey, balance+actual); err != nil {
		return nil, err
	}

	holding, err := tx.GetHolding(ctx, userID, itemKey)
	if err != nil {
		return nil, err
	}
	if err := tx.SetHolding(ctx, userID, itemKey, holding+actual); err != nil {
		return nil, err
	}

	now := e.now()
	if err := tx.AppendHistory(ctx, &model.HistoryEntry{
		Timestamp: now,
		UserID:    userID,
		Action:    model.ActionDeposited,
		Item:      itemKey,
		Quantity:  float64(actual),
		Location:  o.location,
	}); err != nil {
		return nil, err
	}

	award := e.policy.Award(category, actual)
	total, err := tx.AddReputation(ctx, userID, award)
	if err != nil {
		return nil, err
	}
	if err := tx.AppendHistory(ctx, &model.HistoryEntry{
		Timestamp: now,
		UserID:    userID,
		Action:    model.ActionReputationAwarded,
		Item:      model.ReputationLabel,
		Quantity:  award,
	}); err != nil {
		return nil, err
	}

	return &DepositResult{
		Item:              itemKey,
		DisplayName:       e.displayName(itemKey),
		Category:          category,
		Requested:         quantity,
		Actual:            actual,
		Balance:           balance + actual,
		Limit:             limit,
		Holding:           holding + actual,
		ReputationAwarded: award,
		ReputationTotal:   total,
		Truncated:         actual < quantity,
	}, nil
}

// inferCategory classifies an item the ledger has never seen: the caller's
// hint first, then the closest catalog entry, then Otros.
func (e *Engine) inferCategory(itemKey, hint string) model.Category {
	if hint != "" {
		return e.policy.MapExternal(hint)
	}
	if e.catalog != nil {
		if entry, ok := e.catalog.BestMatch(itemKey); ok && entry.Category != "" {
			return e.policy.MapExternal(entry.Category)
		}
	}
	return model.CategoryOther
}

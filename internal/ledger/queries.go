package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/clanbank/internal/model"
)

// InventoryLine is one item of the clan inventory report.
type InventoryLine struct {
	Item        string
	DisplayName string
	Category    model.Category
	Holders     []model.UserHolding
	Quantity    int
	Limit       int
}

// SearchCatalog returns catalog matches for term. A non-positive limit uses
// the engine's search limit.
func (e *Engine) SearchCatalog(term string, limit int) []model.CatalogMatch {
	if e.catalog == nil {
		return nil
	}
	if limit <= 0 {
		limit = e.cfg.SearchLimit
	}
	return e.catalog.Search(term, limit)
}

// SearchUserHoldings returns matches restricted to items userID holds, each
// with the member's available quantity.
func (e *Engine) SearchUserHoldings(ctx context.Context, userID, term string, limit int) ([]model.CatalogMatch, error) {
	userID = strings.TrimSpace(userID)
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.SearchLimit
	}

	var holdings []model.UserHolding
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		holdings, err = e.store.ListHoldingsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	if e.catalog == nil {
		return nil, nil
	}
	return e.catalog.SearchHoldings(term, holdings, limit), nil
}

// CurrentBalance returns the clan-wide quantity of item, 0 when it was never
// deposited.
func (e *Engine) CurrentBalance(ctx context.Context, item string) (int, error) {
	itemKey := e.resolveKey(item)
	if err := requireItem(itemKey); err != nil {
		return 0, err
	}

	var balance int
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		balance, _, err = balanceOf(ctx, e.store, itemKey)
		return err
	})
	return balance, err
}

// UserHolding returns how much of item userID holds.
func (e *Engine) UserHolding(ctx context.Context, userID, item string) (int, error) {
	userID = strings.TrimSpace(userID)
	itemKey := e.resolveKey(item)
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	if err := requireItem(itemKey); err != nil {
		return 0, err
	}

	var holding int
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		holding, err = e.store.GetHolding(ctx, userID, itemKey)
		return err
	})
	return holding, err
}

// UserHoldings lists every item userID holds.
func (e *Engine) UserHoldings(ctx context.Context, userID string) ([]model.UserHolding, error) {
	userID = strings.TrimSpace(userID)
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var holdings []model.UserHolding
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		holdings, err = e.store.ListHoldingsByUser(ctx, userID)
		return err
	})
	return holdings, err
}

// UserReputation returns a member's reputation, 0 for members without an
// account.
func (e *Engine) UserReputation(ctx context.Context, userID string) (float64, error) {
	userID = strings.TrimSpace(userID)
	if err := requireUser(userID); err != nil {
		return 0, err
	}

	var points float64
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		points, err = e.store.GetReputation(ctx, userID)
		return err
	})
	return points, err
}

// Leaderboard returns the topN reputation accounts. A non-positive topN uses
// the configured leaderboard size.
func (e *Engine) Leaderboard(ctx context.Context, topN int) ([]model.ReputationAccount, error) {
	if topN <= 0 {
		topN = e.cfg.LeaderboardSize
	}

	var accounts []model.ReputationAccount
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		accounts, err = e.store.ListReputation(ctx, topN)
		return err
	})
	return accounts, err
}

// History returns userID's history in insertion order.
func (e *Engine) History(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	userID = strings.TrimSpace(userID)
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	var entries []model.HistoryEntry
	err := e.read(ctx, func(ctx context.Context) error {
		var err error
		entries, err = e.store.GetHistory(ctx, userID)
		return err
	})
	return entries, err
}

// Inventory returns every item with a positive balance, ordered by category
// and then display name. Items without a category are reported under Otros.
func (e *Engine) Inventory(ctx context.Context) ([]InventoryLine, error) {
	var lines []InventoryLine
	err := e.read(ctx, func(ctx context.Context) error {
		balances, err := e.store.ListBalances(ctx)
		if err != nil {
			return fmt.Errorf("failed to list balances: %w", err)
		}

		lines = make([]InventoryLine, 0, len(balances))
		for _, b := range balances {
			if b.Quantity <= 0 {
				continue
			}

			category, err := e.policy.CategoryOf(ctx, e.store, b.ItemKey)
			if err != nil {
				return err
			}
			if !category.IsClassified() {
				category = model.CategoryOther
			}

			holders, err := e.store.ListHoldingsByItem(ctx, b.ItemKey)
			if err != nil {
				return fmt.Errorf("failed to list holders of %s: %w", b.ItemKey, err)
			}

			lines = append(lines, InventoryLine{
				Item:        b.ItemKey,
				DisplayName: e.displayName(b.ItemKey),
				Category:    category,
				Quantity:    b.Quantity,
				Limit:       e.policy.LimitFor(category),
				Holders:     holders,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(lines, func(i, j int) bool {
		ci, cj := categoryRank(lines[i].Category), categoryRank(lines[j].Category)
		if ci != cj {
			return ci < cj
		}
		return strings.ToLower(lines[i].DisplayName) < strings.ToLower(lines[j].DisplayName)
	})
	return lines, nil
}

func categoryRank(c model.Category) int {
	for i, known := range model.CategoryOrder {
		if c == known {
			return i
		}
	}
	return len(model.CategoryOrder)
}

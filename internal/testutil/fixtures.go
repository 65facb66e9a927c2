package testutil

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// FixtureTime is the timestamp given to seeded history entries.
var FixtureTime = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

// Fixture is a fluent description of ledger state to seed into a store.
// Holdings also count towards the item's clan balance.
type Fixture struct {
	balances   map[string]int
	holdings   map[[2]string]int
	reputation map[string]float64
	overrides  map[string]model.Category
	history    []model.HistoryEntry
}

// NewFixture returns an empty fixture.
func NewFixture() *Fixture {
	return &Fixture{
		balances:   map[string]int{},
		holdings:   map[[2]string]int{},
		reputation: map[string]float64{},
		overrides:  map[string]model.Category{},
	}
}

// WithHolding attributes qty of item to user and adds it to the balance.
func (f *Fixture) WithHolding(userID, item string, qty int) *Fixture {
	key := model.NormalizeKey(item)
	f.holdings[[2]string{userID, key}] += qty
	f.balances[key] += qty
	return f
}

// WithUnattributed adds qty to the balance without a holder.
func (f *Fixture) WithUnattributed(item string, qty int) *Fixture {
	f.balances[model.NormalizeKey(item)] += qty
	return f
}

// WithReputation gives user points.
func (f *Fixture) WithReputation(userID string, points float64) *Fixture {
	f.reputation[userID] += points
	return f
}

// WithOverride records a learned category for item.
func (f *Fixture) WithOverride(item string, category model.Category) *Fixture {
	f.overrides[model.NormalizeKey(item)] = category
	return f
}

// WithHistory appends a history entry. A zero timestamp becomes FixtureTime.
func (f *Fixture) WithHistory(entry model.HistoryEntry) *Fixture {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = FixtureTime
	}
	f.history = append(f.history, entry)
	return f
}

// Apply writes the fixture in one transaction.
func (f *Fixture) Apply(ctx context.Context, store service.LedgerStore) error {
	tx, err := store.BeginTx(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	items := make([]string, 0, len(f.balances))
	for item := range f.balances {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		if err := tx.SetBalance(ctx, item, f.balances[item]); err != nil {
			return fmt.Errorf("seeding balance %q: %w", item, err)
		}
	}

	for key, qty := range f.holdings {
		if err := tx.SetHolding(ctx, key[0], key[1], qty); err != nil {
			return fmt.Errorf("seeding holding %v: %w", key, err)
		}
	}

	for userID, points := range f.reputation {
		if _, err := tx.AddReputation(ctx, userID, points); err != nil {
			return fmt.Errorf("seeding reputation for %s: %w", userID, err)
		}
	}

	for item, category := range f.overrides {
		if err := tx.SaveCategoryOverride(ctx, item, category); err != nil {
			return fmt.Errorf("seeding override %q: %w", item, err)
		}
	}

	for i := range f.history {
		entry := f.history[i]
		if err := tx.AppendHistory(ctx, &entry); err != nil {
			return fmt.Errorf("seeding history: %w", err)
		}
	}

	return tx.Commit()
}

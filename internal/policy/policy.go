// Package policy decides which category an item belongs to, how much of a
// category the clan may store, and how much reputation a deposit earns.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// ErrInvalidPolicy is returned by New for unusable tables.
var ErrInvalidPolicy = errors.New("invalid ledger policy")

// Reward is the reputation earned per unit deposited: quantity / Divisor *
// Rate. A zero Divisor means 1.
type Reward struct {
	Rate    float64 `mapstructure:"rate" yaml:"rate"`
	Divisor float64 `mapstructure:"divisor" yaml:"divisor"`
}

// Config holds the policy tables. Map keys are matched case-insensitively
// because viper lower-cases them.
type Config struct {
	Limits           map[string]int      `mapstructure:"limits"`
	Rewards          map[string]Reward   `mapstructure:"rewards"`
	CategoryMapping  map[string]string   `mapstructure:"category_mapping"`
	StaticCategories map[string][]string `mapstructure:"static_categories"`
	DefaultLimit     int                 `mapstructure:"default_limit" validate:"gt=0"`
	FallbackRate     float64             `mapstructure:"fallback_rate" validate:"gte=0"`
}

// CatalogLookup resolves a catalog entry by exact name.
type CatalogLookup interface {
	Lookup(name string) (model.CatalogEntry, bool)
}

// Policy applies the tables in a Config. It is immutable and safe for
// concurrent use.
type Policy struct {
	catalog      CatalogLookup
	limits       map[string]int
	rewards      map[string]Reward
	mapping      map[string]model.Category
	static       map[string]model.Category
	defaultLimit int
	fallbackRate decimal.Decimal
}

// New validates cfg and builds a Policy. catalog may be nil.
func New(cfg Config, catalog CatalogLookup) (*Policy, error) {
	if cfg.DefaultLimit <= 0 {
		return nil, fmt.Errorf("%w: default limit must be positive, got %d", ErrInvalidPolicy, cfg.DefaultLimit)
	}
	if cfg.FallbackRate < 0 {
		return nil, fmt.Errorf("%w: fallback rate cannot be negative", ErrInvalidPolicy)
	}

	p := &Policy{
		catalog:      catalog,
		limits:       make(map[string]int, len(cfg.Limits)),
		rewards:      make(map[string]Reward, len(cfg.Rewards)),
		mapping:      make(map[string]model.Category, len(cfg.CategoryMapping)),
		static:       make(map[string]model.Category),
		defaultLimit: cfg.DefaultLimit,
		fallbackRate: decimal.NewFromFloat(cfg.FallbackRate),
	}

	for name, limit := range cfg.Limits {
		if limit < 0 {
			return nil, fmt.Errorf("%w: limit for %q cannot be negative", ErrInvalidPolicy, name)
		}
		p.limits[categoryKey(name)] = limit
	}

	for name, reward := range cfg.Rewards {
		if reward.Rate < 0 || reward.Divisor < 0 {
			return nil, fmt.Errorf("%w: reward for %q cannot be negative", ErrInvalidPolicy, name)
		}
		p.rewards[categoryKey(name)] = reward
	}

	for external, internal := range cfg.CategoryMapping {
		category, _ := model.ParseCategory(internal)
		if !category.IsClassified() {
			return nil, fmt.Errorf("%w: mapping for %q has no target category", ErrInvalidPolicy, external)
		}
		p.mapping[categoryKey(external)] = category
	}
	// Internal names always map to themselves.
	for _, category := range model.CategoryOrder {
		if _, ok := p.mapping[categoryKey(string(category))]; !ok {
			p.mapping[categoryKey(string(category))] = category
		}
	}

	for name, items := range cfg.StaticCategories {
		category, _ := model.ParseCategory(name)
		if !category.IsClassified() {
			continue
		}
		for _, item := range items {
			if key := model.NormalizeKey(item); key != "" {
				p.static[key] = category
			}
		}
	}

	return p, nil
}

func categoryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CategoryOf resolves an item's category: a learned override first, then the
// static table, then the catalog entry with the exact same name. Items none
// of them know are Unclassified.
func (p *Policy) CategoryOf(ctx context.Context, reader service.LedgerReader, itemKey string) (model.Category, error) {
	key := model.NormalizeKey(itemKey)
	if key == "" {
		return model.CategoryUnclassified, nil
	}

	category, err := reader.GetCategoryOverride(ctx, key)
	switch {
	case err == nil:
		return category, nil
	case !errors.Is(err, common.ErrNotFound):
		return model.CategoryUnclassified, fmt.Errorf("failed to look up category override: %w", err)
	}

	if category, ok := p.static[key]; ok {
		return category, nil
	}

	if p.catalog != nil {
		if entry, ok := p.catalog.Lookup(key); ok && strings.TrimSpace(entry.Category) != "" {
			return p.MapExternal(entry.Category), nil
		}
	}

	return model.CategoryUnclassified, nil
}

// SetCategory records a learned category. The first write wins.
func (p *Policy) SetCategory(ctx context.Context, writer service.LedgerWriter, itemKey string, category model.Category) error {
	if !category.IsClassified() {
		return fmt.Errorf("%w: cannot learn an empty category for %q", ErrInvalidPolicy, itemKey)
	}
	return writer.SaveCategoryOverride(ctx, model.NormalizeKey(itemKey), category)
}

// MapExternal translates a catalog or caller category name to an internal
// category. Unknown names map to Otros.
func (p *Policy) MapExternal(name string) model.Category {
	if category, ok := p.mapping[categoryKey(name)]; ok {
		return category
	}
	return model.CategoryOther
}

// LimitFor returns the storage ceiling for a category.
func (p *Policy) LimitFor(category model.Category) int {
	if limit, ok := p.limits[categoryKey(string(category))]; ok {
		return limit
	}
	return p.defaultLimit
}

// Award returns the reputation earned for depositing quantity units of a
// category, rounded to two decimals.
func (p *Policy) Award(category model.Category, quantity int) float64 {
	if quantity <= 0 {
		return 0
	}

	qty := decimal.NewFromInt(int64(quantity))
	rate := p.fallbackRate

	if reward, ok := p.rewards[categoryKey(string(category))]; ok {
		rate = decimal.NewFromFloat(reward.Rate)
		if reward.Divisor > 0 {
			qty = qty.Div(decimal.NewFromFloat(reward.Divisor))
		}
	}

	award, _ := qty.Mul(rate).Round(2).Float64()
	return award
}

package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/catalog"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/storage"
)

func newTestPolicy(t *testing.T) *Policy {
	t.Helper()
	cat := catalog.New([]model.CatalogEntry{
		{DisplayName: "Laser Pistol", Category: "ARMAS"},
		{DisplayName: "Flight Suit", Category: "ROPA"},
		{DisplayName: "Mystery Box", Category: "SECRETO"},
	})
	p, err := New(DefaultConfig(), cat)
	require.NoError(t, err)
	return p
}

func TestPolicy_Award(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		name     string
		category model.Category
		quantity int
		want     float64
	}{
		{name: "weapons", category: model.CategoryWeapons, quantity: 20, want: 1.00},
		{name: "materials use divisor", category: model.CategoryMaterials, quantity: 100, want: 0.50},
		{name: "armor", category: model.CategoryArmor, quantity: 3, want: 0.60},
		{name: "consumables", category: model.CategoryConsumables, quantity: 7, want: 0.07},
		{name: "medicine", category: model.CategoryMedicine, quantity: 5, want: 0.10},
		{name: "fallback for others", category: model.CategoryOther, quantity: 30, want: 0.30},
		{name: "materials rounding", category: model.CategoryMaterials, quantity: 3, want: 0.02},
		{name: "zero quantity", category: model.CategoryWeapons, quantity: 0, want: 0},
		{name: "negative quantity", category: model.CategoryArmor, quantity: -4, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Award(tt.category, tt.quantity))
		})
	}
}

func TestPolicy_AwardIsDeterministic(t *testing.T) {
	p := newTestPolicy(t)
	first := p.Award(model.CategoryWeapons, 13)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, p.Award(model.CategoryWeapons, 13))
	}
}

func TestPolicy_LimitFor(t *testing.T) {
	p := newTestPolicy(t)
	assert.Equal(t, 1000, p.LimitFor(model.CategoryMaterials))
	assert.Equal(t, 50, p.LimitFor(model.CategoryWeapons))
	assert.Equal(t, 50, p.LimitFor(model.CategoryUnclassified))
}

func TestPolicy_MapExternal(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		input string
		want  model.Category
	}{
		{input: "ARMAS", want: model.CategoryWeapons},
		{input: "municion", want: model.CategoryWeapons},
		{input: "MINERALES", want: model.CategoryMaterials},
		{input: "ROPA", want: model.CategoryOther},
		{input: "Armaduras", want: model.CategoryArmor},
		{input: "Medicinas", want: model.CategoryMedicine},
		{input: "Minerales y materiales", want: model.CategoryMaterials},
		{input: "VEHICULOS", want: model.CategoryOther},
		{input: "", want: model.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, p.MapExternal(tt.input))
		})
	}
}

func TestPolicy_CategoryOf(t *testing.T) {
	p := newTestPolicy(t)
	store := storage.NewMemoryStorage()
	ctx := context.Background()

	got, err := p.CategoryOf(ctx, store, "Gold")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryMaterials, got, "static table")

	got, err = p.CategoryOf(ctx, store, "laser pistol")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryWeapons, got, "catalog category mapped")

	got, err = p.CategoryOf(ctx, store, "mystery box")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, got, "unmapped catalog category")

	got, err = p.CategoryOf(ctx, store, "odd rock")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUnclassified, got)

	tx, err := store.BeginTx(ctx, "odd rock")
	require.NoError(t, err)
	require.NoError(t, p.SetCategory(ctx, tx, "Odd Rock", model.CategoryMaterials))
	require.NoError(t, p.SetCategory(ctx, tx, "odd rock", model.CategoryWeapons))
	require.NoError(t, tx.Commit())

	got, err = p.CategoryOf(ctx, store, "odd rock")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryMaterials, got, "first learned category wins")
	assert.Equal(t, 1000, p.LimitFor(got))

	// A learned override beats the static table.
	tx, err = store.BeginTx(ctx, "medpen")
	require.NoError(t, err)
	require.NoError(t, p.SetCategory(ctx, tx, "medpen", model.CategoryConsumables))
	require.NoError(t, tx.Commit())
	got, err = p.CategoryOf(ctx, store, "medpen")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryConsumables, got)
}

func TestPolicy_SetCategoryRejectsEmpty(t *testing.T) {
	p := newTestPolicy(t)
	store := storage.NewMemoryStorage()
	tx, err := store.BeginTx(context.Background(), "x")
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	require.ErrorIs(t, p.SetCategory(context.Background(), tx, "x", model.CategoryUnclassified), ErrInvalidPolicy)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "zero default limit", mutate: func(c *Config) { c.DefaultLimit = 0 }},
		{name: "negative limit", mutate: func(c *Config) { c.Limits["Armas"] = -1 }},
		{name: "negative rate", mutate: func(c *Config) { c.Rewards["Armas"] = Reward{Rate: -1} }},
		{name: "empty mapping target", mutate: func(c *Config) { c.CategoryMapping["X"] = "  " }},
		{name: "negative fallback", mutate: func(c *Config) { c.FallbackRate = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, nil)
			require.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestNew_LowerCasedKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limits = map[string]int{"minerales y materiales": 500, "armas": 20}
	p, err := New(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 500, p.LimitFor(model.CategoryMaterials))
	assert.Equal(t, 20, p.LimitFor(model.CategoryWeapons))
}

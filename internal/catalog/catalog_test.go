package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/clanbank/internal/model"
)

func testCatalog() *Catalog {
	return New([]model.CatalogEntry{
		{Key: "p4-ar rifle", DisplayName: "P4-AR Rifle", Category: "ARMAS"},
		{Key: "gold", DisplayName: "Gold", Category: "MINERALES"},
		{Key: "gold (ore)", DisplayName: "Gold (Ore)", Category: "MINERALES"},
		{Key: "golden medpen", DisplayName: "Golden Medpen", Category: "CONSUMIBLES"},
		{Key: "rose gold livery", DisplayName: "Rose Gold Livery", Category: "OTROS"},
		{Key: "medpen", DisplayName: "MedPen", Category: "CONSUMIBLES"},
		{Key: "medpen dup", DisplayName: "medpen", Category: "CONSUMIBLES"},
		{Key: "agricium", DisplayName: "Agricium", Category: "MINERALES"},
	})
}

func TestNew_DeduplicatesByDisplayName(t *testing.T) {
	c := testCatalog()
	assert.Equal(t, 7, c.Len())

	e, ok := c.Lookup("MEDPEN")
	require.True(t, ok)
	assert.Equal(t, "MedPen", e.DisplayName)
	assert.Equal(t, "medpen", e.Key)
}

func TestNew_AliasesDoNotDropEntries(t *testing.T) {
	c := New([]model.CatalogEntry{
		{Key: "acero", DisplayName: "Acero Refinado", Category: "MINERALES"},
		{Key: "acero bruto", DisplayName: "Acero", Category: "MINERALES"},
		{Key: "lingote", DisplayName: "Lingote de Oro", Category: "MINERALES"},
		{Key: "lingote", DisplayName: "Lingote de Plata", Category: "MINERALES"},
	})
	require.Equal(t, 4, c.Len())

	tests := []struct {
		name    string
		want    string
		lookup  string
		wantKey string
	}{
		{name: "display name wins over an earlier alias", lookup: "ACERO", want: "Acero", wantKey: "acero"},
		{name: "alias resolves to its entry", lookup: "acero bruto", want: "Acero", wantKey: "acero"},
		{name: "full display name", lookup: "acero refinado", want: "Acero Refinado", wantKey: "acero refinado"},
		{name: "shared alias goes to the first entry", lookup: "lingote", want: "Lingote de Oro", wantKey: "lingote de oro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := c.Lookup(tt.lookup)
			require.True(t, ok)
			assert.Equal(t, tt.want, e.DisplayName)
			assert.Equal(t, tt.wantKey, e.Key)
		})
	}
}

func TestSearch(t *testing.T) {
	c := testCatalog()

	tests := []struct {
		name  string
		term  string
		limit int
		want  []string
	}{
		{
			name: "exact prefix ranks first, then shorter names",
			term: "gold",
			want: []string{"Gold", "Gold (Ore)", "Golden Medpen"},
		},
		{
			name: "substring after prefix",
			term: "med",
			want: []string{"MedPen", "Golden Medpen"},
		},
		{
			name: "case insensitive",
			term: "  AGRI ",
			want: []string{"Agricium"},
		},
		{
			name:  "limit",
			term:  "gold",
			limit: 2,
			want:  []string{"Gold", "Gold (Ore)"},
		},
		{
			name: "blocked term",
			term: "livery",
			want: []string{},
		},
		{
			name: "blank term",
			term: "   ",
			want: []string{},
		},
		{
			name: "no match",
			term: "quantanium",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Search(tt.term, tt.limit)
			names := make([]string, 0, len(got))
			for _, m := range got {
				names = append(names, m.DisplayName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSearch_DefaultLimit(t *testing.T) {
	entries := make([]model.CatalogEntry, 0, 40)
	for i := 0; i < 40; i++ {
		name := "iron " + strings.Repeat("x", i)
		entries = append(entries, model.CatalogEntry{Key: name, DisplayName: name})
	}
	c := New(entries)

	got := c.Search("iron", 0)
	assert.Len(t, got, DefaultLimit)
	assert.Equal(t, "iron", got[0].DisplayName)
}

func TestSearch_CustomBlocklist(t *testing.T) {
	c := New([]model.CatalogEntry{
		{DisplayName: "Rose Gold Livery"},
		{DisplayName: "Gold"},
	}, WithBlocklist([]string{"Gold"}))

	assert.Empty(t, c.Search("rose", 0))
	assert.Empty(t, c.Search("gold", 0))
}

func TestSearchHoldings(t *testing.T) {
	c := testCatalog()
	holdings := []model.UserHolding{
		{UserID: "1", ItemKey: "gold (ore)", Quantity: 4},
		{UserID: "1", ItemKey: "golden medpen", Quantity: 0},
		{UserID: "1", ItemKey: "gold nugget", Quantity: 2},
		{UserID: "1", ItemKey: "medpen", Quantity: 1},
	}

	got := c.SearchHoldings("gold", holdings, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Gold (Ore)", got[0].DisplayName)
	assert.Equal(t, 4, got[0].Available)
	assert.Equal(t, "gold nugget", got[1].DisplayName)
	assert.Equal(t, 2, got[1].Available)

	assert.Empty(t, c.SearchHoldings("ship", holdings, 0))
}

func TestBestMatch(t *testing.T) {
	c := testCatalog()

	e, ok := c.BestMatch("gold (ore)")
	require.True(t, ok)
	assert.Equal(t, "Gold (Ore)", e.DisplayName)

	e, ok = c.BestMatch("agr")
	require.True(t, ok)
	assert.Equal(t, "MINERALES", e.Category)

	_, ok = c.BestMatch("bexalite")
	assert.False(t, ok)
}

func TestLoad_PreservesFileOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	data := `{
  "zeta gun": {"nombre_original": "Zeta Gun", "categoria": "ARMAS"},
  "alpha gun": {"nombre_original": "Alpha Gun", "categoria": "ARMAS"}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	// Equal tier and length, so file order decides.
	got := c.Search("gun", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Zeta Gun", got[0].DisplayName)
	assert.Equal(t, "Alpha Gun", got[1].DisplayName)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`["not", "an", "object"]`), 0o600))
	_, err = Load(bad)
	require.ErrorIs(t, err, ErrInvalidCatalog)
}

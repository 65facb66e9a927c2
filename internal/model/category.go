package model

import "strings"

// Category is an item class. It drives both the storage ceiling and the
// reputation multiplier applied to deposits.
type Category string

const (
	// CategoryConsumables holds food, water and similar items.
	CategoryConsumables Category = "Consumibles"
	// CategoryMaterials holds raw ores and refined materials counted in bulk units.
	CategoryMaterials Category = "Minerales y materiales"
	// CategoryWeapons holds weapons and ammunition.
	CategoryWeapons Category = "Armas"
	// CategoryArmor holds armor sets and pieces.
	CategoryArmor Category = "Armaduras"
	// CategoryMedicine holds medical supplies.
	CategoryMedicine Category = "Medicinas"
	// CategoryOther is the catch-all bucket for anything unmapped.
	CategoryOther Category = "Otros"
	// CategoryUnclassified marks an item with no learned or static category yet.
	CategoryUnclassified Category = ""
)

// CategoryOrder is the order categories are listed in reports.
var CategoryOrder = []Category{
	CategoryConsumables,
	CategoryMaterials,
	CategoryWeapons,
	CategoryArmor,
	CategoryMedicine,
	CategoryOther,
}

// IsClassified reports whether c names a real category.
func (c Category) IsClassified() bool {
	return c != CategoryUnclassified
}

func (c Category) String() string {
	if c == CategoryUnclassified {
		return "Unclassified"
	}
	return string(c)
}

// ParseCategory resolves a category name case-insensitively against the
// built-in set. Names outside the set are returned trimmed with ok=false so
// callers can decide whether to accept custom categories.
func ParseCategory(name string) (Category, bool) {
	trimmed := strings.TrimSpace(name)
	for _, c := range CategoryOrder {
		if strings.EqualFold(string(c), trimmed) {
			return c, true
		}
	}
	return Category(trimmed), false
}

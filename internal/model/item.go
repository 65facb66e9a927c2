package model

import "strings"

// NormalizeKey turns a free-text item name into the key used for every
// ledger row: lower-cased with surrounding whitespace removed.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CatalogEntry is one read-only record of the static search catalog.
// Category holds the catalog's own category label, which may be an
// external name (e.g. "ARMAS") that the policy maps to an internal one.
type CatalogEntry struct {
	Key         string
	DisplayName string
	Category    string
}

// CatalogMatch is a search hit. Available is only populated for searches
// scoped to a user's holdings.
type CatalogMatch struct {
	Key         string
	DisplayName string
	Category    string
	Available   int
}

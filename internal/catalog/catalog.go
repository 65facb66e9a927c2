// Package catalog resolves free-text item searches against the static item
// catalog loaded at startup.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/Veraticus/clanbank/internal/model"
)

// DefaultLimit caps search results when the caller passes no limit. It
// matches the most options a chat select menu can show.
const DefaultLimit = 25

// DefaultBlocklist excludes vehicles and ship equipment, which the clan
// bank does not store.
var DefaultBlocklist = []string{
	"nave",
	"ship",
	"vehículo",
	"vehicle",
	"rover",
	"livery",
	"pintura",
	"paint",
}

// ErrInvalidCatalog is returned when the catalog file cannot be decoded.
var ErrInvalidCatalog = errors.New("invalid catalog data")

// Catalog is an immutable, ordered set of catalog entries. It is safe for
// concurrent use.
type Catalog struct {
	byKey     map[string]int
	aliases   map[string]int
	entries   []model.CatalogEntry
	blocklist []string
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithBlocklist replaces the default blocklist.
func WithBlocklist(terms []string) Option {
	return func(c *Catalog) {
		c.blocklist = c.blocklist[:0]
		for _, term := range terms {
			if norm := model.NormalizeKey(term); norm != "" {
				c.blocklist = append(c.blocklist, norm)
			}
		}
	}
}

// New builds a catalog from entries in the given order. Entries whose
// normalized display name collides with an earlier one are dropped. A file
// key that differs from the display name becomes a lookup alias; aliases
// never shadow a display name and never cause an entry to be dropped.
func New(entries []model.CatalogEntry, opts ...Option) *Catalog {
	c := &Catalog{
		byKey:     make(map[string]int, len(entries)),
		aliases:   make(map[string]int),
		entries:   make([]model.CatalogEntry, 0, len(entries)),
		blocklist: append([]string(nil), DefaultBlocklist...),
	}
	for _, opt := range opts {
		opt(c)
	}

	aliasOf := make(map[string]int)
	for _, e := range entries {
		key := model.NormalizeKey(e.DisplayName)
		if key == "" {
			key = model.NormalizeKey(e.Key)
		}
		if key == "" {
			continue
		}
		if _, dup := c.byKey[key]; dup {
			continue
		}
		display := strings.TrimSpace(e.DisplayName)
		if display == "" {
			display = key
		}
		c.byKey[key] = len(c.entries)
		c.entries = append(c.entries, model.CatalogEntry{
			Key:         key,
			DisplayName: display,
			Category:    strings.TrimSpace(e.Category),
		})
		if alias := model.NormalizeKey(e.Key); alias != "" && alias != key {
			if _, taken := aliasOf[alias]; !taken {
				aliasOf[alias] = len(c.entries) - 1
			}
		}
	}
	for alias, idx := range aliasOf {
		if _, isName := c.byKey[alias]; !isName {
			c.aliases[alias] = idx
		}
	}

	return c
}

// Load reads a catalog file. The file is a JSON object mapping a normalized
// name to {"nombre_original": ..., "categoria": ...}; entry order follows
// the file.
func Load(path string, opts ...Option) (*Catalog, error) {
	// #nosec G304 - path comes from operator configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()

	entries, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}

	c := New(entries, opts...)
	slog.Info("Loaded item catalog", "path", path, "entries", c.Len())
	return c, nil
}

type rawEntry struct {
	DisplayName string `json:"nombre_original"`
	Category    string `json:"categoria"`
}

// decode walks the top-level object token by token so that entry order is
// preserved.
func decode(r io.Reader) ([]model.CatalogEntry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidCatalog)
	}

	var entries []model.CatalogEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrInvalidCatalog, keyTok)
		}

		var raw rawEntry
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidCatalog, key, err)
		}
		entries = append(entries, model.CatalogEntry{
			Key:         key,
			DisplayName: raw.DisplayName,
			Category:    raw.Category,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return entries, nil
}

// Len returns the number of distinct entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup finds an entry by normalized display name, then by file key alias.
func (c *Catalog) Lookup(name string) (model.CatalogEntry, bool) {
	norm := model.NormalizeKey(name)
	idx, ok := c.byKey[norm]
	if !ok {
		idx, ok = c.aliases[norm]
	}
	if !ok {
		return model.CatalogEntry{}, false
	}
	return c.entries[idx], true
}

// BestMatch returns the top-ranked global match for name.
func (c *Catalog) BestMatch(name string) (model.CatalogEntry, bool) {
	if e, ok := c.Lookup(name); ok {
		return e, true
	}
	matches := c.Search(name, 1)
	if len(matches) == 0 {
		return model.CatalogEntry{}, false
	}
	return c.entries[c.byKey[matches[0].Key]], true
}

// Search returns catalog entries matching term, best first.
func (c *Catalog) Search(term string, limit int) []model.CatalogMatch {
	norm, ok := c.prepareTerm(term)
	if !ok {
		return []model.CatalogMatch{}
	}

	candidates := make([]candidate, 0)
	for i, e := range c.entries {
		if cand, hit := c.match(norm, e, i); hit {
			candidates = append(candidates, cand)
		}
	}

	return finish(candidates, limit)
}

// SearchHoldings restricts a search to items in holdings with a positive
// quantity and reports that quantity on each match. Held items that are not
// in the catalog are still searchable by their key.
func (c *Catalog) SearchHoldings(term string, holdings []model.UserHolding, limit int) []model.CatalogMatch {
	norm, ok := c.prepareTerm(term)
	if !ok {
		return []model.CatalogMatch{}
	}

	held := make(map[string]int, len(holdings))
	for _, h := range holdings {
		if h.Quantity > 0 {
			held[model.NormalizeKey(h.ItemKey)] += h.Quantity
		}
	}

	candidates := make([]candidate, 0, len(held))
	seen := make(map[string]bool, len(held))
	for i, e := range c.entries {
		qty, ok := held[e.Key]
		if !ok {
			continue
		}
		seen[e.Key] = true
		if cand, hit := c.match(norm, e, i); hit {
			cand.match.Available = qty
			candidates = append(candidates, cand)
		}
	}

	// Uncatalogued holdings come after every catalog entry, in key order.
	extra := make([]string, 0)
	for key := range held {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for i, key := range extra {
		e := model.CatalogEntry{Key: key, DisplayName: key}
		if cand, hit := c.match(norm, e, len(c.entries)+i); hit {
			cand.match.Available = held[key]
			candidates = append(candidates, cand)
		}
	}

	return finish(candidates, limit)
}

func (c *Catalog) prepareTerm(term string) (string, bool) {
	norm := model.NormalizeKey(term)
	if norm == "" || c.blocked(norm) {
		return "", false
	}
	return norm, true
}

func (c *Catalog) blocked(name string) bool {
	for _, b := range c.blocklist {
		if strings.Contains(name, b) {
			return true
		}
	}
	return false
}

type candidate struct {
	match  model.CatalogMatch
	tier   int
	exact  bool
	order  int
	length int
}

func (c *Catalog) match(term string, e model.CatalogEntry, order int) (candidate, bool) {
	name := model.NormalizeKey(e.DisplayName)
	if c.blocked(name) {
		return candidate{}, false
	}

	var tier int
	switch {
	case strings.HasPrefix(name, term):
		tier = 0
	case strings.Contains(name, term):
		tier = 1
	default:
		return candidate{}, false
	}

	return candidate{
		match: model.CatalogMatch{
			Key:         e.Key,
			DisplayName: e.DisplayName,
			Category:    e.Category,
		},
		tier:   tier,
		exact:  len(name) == len(term),
		order:  order,
		length: len([]rune(e.DisplayName)),
	}, true
}

func finish(candidates []candidate, limit int) []model.CatalogMatch {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.exact != b.exact {
			return a.exact
		}
		if a.length != b.length {
			return a.length < b.length
		}
		return a.order < b.order
	})

	if limit <= 0 {
		limit = DefaultLimit
	}

	results := make([]model.CatalogMatch, 0, min(limit, len(candidates)))
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		name := model.NormalizeKey(cand.match.DisplayName)
		if seen[name] {
			continue
		}
		seen[name] = true
		results = append(results, cand.match)
		if len(results) == limit {
			break
		}
	}
	return results
}

// Package legacy imports the SQLite database written by the original Discord
// bot into a ledger store.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	// Register the SQLite driver for legacy files.
	_ "github.com/mattn/go-sqlite3"
	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// TimestampLayout is how the legacy bot wrote history timestamps.
const TimestampLayout = "02/01/2006 15:04:05"

// Legacy history actions.
const (
	actionAdded       = "Añadido"
	actionWithdrawn   = "Retirado"
	actionTransferred = "Transferido"
	actionReceived    = "Recibido"
	actionReputation  = "Ganó Reputación"
)

var (
	// ErrNotLegacyDatabase is returned when a required legacy table is missing.
	ErrNotLegacyDatabase = errors.New("not a legacy bot database")
	// ErrDestinationNotEmpty is returned when the target store already has inventory.
	ErrDestinationNotEmpty = errors.New("destination store is not empty")
)

var requiredTables = []string{"inventario", "registro_usuarios", "historial", "reputacion"}

// Options tunes an import.
type Options struct {
	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer
	// Location is the zone legacy timestamps were written in. Defaults to time.Local.
	Location *time.Location
	// Force allows importing into a store that already has inventory.
	Force bool
}

// Summary counts what an import wrote.
type Summary struct {
	Items      int
	Holdings   int
	Reputation int
	History    int
	Overrides  int
	Skipped    int
}

type legacyHistory struct {
	timestamp string
	action    string
	item      string
	location  string
	related   string
	userID    int64
	quantity  float64
}

type snapshot struct {
	balances   map[string]int
	holdings   map[[2]string]int
	reputation map[string]float64
	overrides  map[string]string
	history    []legacyHistory
}

func (s *snapshot) rows() int {
	return len(s.balances) + len(s.holdings) + len(s.reputation) + len(s.overrides) + len(s.history)
}

// Open opens a legacy database file read-only.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	return db, nil
}

// Import copies every legacy row into dst in one transaction.
func Import(ctx context.Context, src *sql.DB, dst service.LedgerStore, opts Options) (*Summary, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	if !opts.Force {
		existing, err := dst.ListBalances(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect destination: %w", err)
		}
		if len(existing) > 0 {
			return nil, ErrDestinationNotEmpty
		}
	}

	snap, err := readSnapshot(ctx, src)
	if err != nil {
		return nil, err
	}

	slog.Info("Read legacy database",
		"items", len(snap.balances),
		"holdings", len(snap.holdings),
		"members", len(snap.reputation),
		"history", len(snap.history))

	bar := newProgressBar(opts.Progress, snap.rows())
	advance := func() {
		if bar == nil {
			return
		}
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}

	tx, err := dst.BeginTx(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	summary, err := write(ctx, tx, snap, opts.Location, advance)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	slog.Info("Legacy import complete",
		"items", summary.Items,
		"holdings", summary.Holdings,
		"history", summary.History,
		"skipped", summary.Skipped)
	return summary, nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	if w == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing legacy ledger...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[yellow]=[reset]",
			SaucerHead:    "[yellow]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func write(ctx context.Context, tx service.Transaction, snap *snapshot, loc *time.Location, advance func()) (*Summary, error) {
	summary := &Summary{}

	for item, qty := range snap.balances {
		if err := tx.SetBalance(ctx, item, qty); err != nil {
			return nil, fmt.Errorf("importing balance %q: %w", item, err)
		}
		summary.Items++
		advance()
	}

	for key, qty := range snap.holdings {
		if err := tx.SetHolding(ctx, key[0], key[1], qty); err != nil {
			return nil, fmt.Errorf("importing holding %s/%s: %w", key[0], key[1], err)
		}
		summary.Holdings++
		advance()
	}

	for user, points := range snap.reputation {
		if points > 0 {
			if _, err := tx.AddReputation(ctx, user, points); err != nil {
				return nil, fmt.Errorf("importing reputation for %s: %w", user, err)
			}
			summary.Reputation++
		}
		advance()
	}

	for item, name := range snap.overrides {
		category, ok := model.ParseCategory(name)
		if !ok || !category.IsClassified() {
			slog.Warn("Unknown legacy category, using Otros", "item", item, "category", name)
			category = model.CategoryOther
		}
		if err := tx.SaveCategoryOverride(ctx, item, category); err != nil {
			return nil, fmt.Errorf("importing category for %q: %w", item, err)
		}
		summary.Overrides++
		advance()
	}

	for _, h := range snap.history {
		entry, ok := convertHistory(h, loc)
		if !ok {
			slog.Warn("Skipping unreadable legacy history row", "user_id", h.userID, "action", h.action, "timestamp", h.timestamp)
			summary.Skipped++
			advance()
			continue
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return nil, fmt.Errorf("importing history: %w", err)
		}
		summary.History++
		advance()
	}

	return summary, nil
}

// convertHistory maps a legacy row to a ledger entry. Transfer rows carry
// the counterparty's name inside the item text ("item → name").
func convertHistory(h legacyHistory, loc *time.Location) (*model.HistoryEntry, bool) {
	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(h.timestamp), loc)
	if err != nil {
		return nil, false
	}

	entry := &model.HistoryEntry{
		Timestamp:    ts.UTC(),
		UserID:       userKey(h.userID),
		Item:         model.NormalizeKey(h.item),
		Location:     h.location,
		Counterparty: h.related,
		Quantity:     h.quantity,
	}

	switch h.action {
	case actionAdded:
		entry.Action = model.ActionDeposited
	case actionWithdrawn:
		entry.Action = model.ActionWithdrawn
		entry.Quantity = -abs(h.quantity)
	case actionReputation:
		entry.Action = model.ActionReputationAwarded
		entry.Item = model.ReputationLabel
	case actionTransferred, actionReceived:
		entry.Action = model.ActionTransferred
		entry.Quantity = -abs(h.quantity)
		sep := " → "
		if h.action == actionReceived {
			entry.Action = model.ActionReceived
			entry.Quantity = abs(h.quantity)
			sep = " ← "
		}
		if item, party, found := strings.Cut(h.item, sep); found {
			entry.Item = model.NormalizeKey(item)
			if entry.Counterparty == "" {
				entry.Counterparty = strings.TrimSpace(party)
			}
		}
		if strings.EqualFold(entry.Item, "reputación") {
			entry.Item = model.ReputationLabel
		}
	default:
		return nil, false
	}

	if entry.Item == "" {
		return nil, false
	}
	return entry, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

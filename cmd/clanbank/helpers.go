package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Veraticus/clanbank/internal/catalog"
	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/config"
	"github.com/Veraticus/clanbank/internal/ledger"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/policy"
	"github.com/Veraticus/clanbank/internal/report"
	"github.com/Veraticus/clanbank/internal/storage"
)

// app bundles everything a command needs to run ledger operations.
type app struct {
	cfg      *config.Config
	store    *storage.SQLStorage
	engine   *ledger.Engine
	render   *report.Renderer
	registry *prometheus.Registry
}

// openStore connects to the configured database and brings its schema up
// to date.
func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLStorage, error) {
	var (
		store *storage.SQLStorage
		err   error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err = storage.NewPostgresStorage(cfg.Database.DSN)
	default:
		store, err = storage.NewSQLiteStorage(cfg.Database.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// loadCatalog reads the item catalog. A missing file leaves the bank
// working with an empty catalog: deposits still succeed, items just get no
// suggestions or catalog categories.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	opts := []catalog.Option{}
	if len(cfg.Catalog.Blocklist) > 0 {
		opts = append(opts, catalog.WithBlocklist(cfg.Catalog.Blocklist))
	}

	cat, err := catalog.Load(cfg.Catalog.Path, opts...)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Item catalog not found, continuing without one", "path", cfg.Catalog.Path)
			return catalog.New(nil, opts...), nil
		}
		return nil, err
	}
	return cat, nil
}

func engineConfig(cfg *config.Config, reg prometheus.Registerer) ledger.Config {
	ec := ledger.DefaultConfig()
	if cfg.Ledger.StoreTimeout > 0 {
		ec.StoreTimeout = cfg.Ledger.StoreTimeout
	}
	if cfg.Ledger.SearchLimit > 0 {
		ec.SearchLimit = cfg.Ledger.SearchLimit
	}
	if cfg.Ledger.LeaderboardSize > 0 {
		ec.LeaderboardSize = cfg.Ledger.LeaderboardSize
	}
	if cfg.Ledger.RetryAttempts > 0 {
		ec.Retry.MaxAttempts = cfg.Ledger.RetryAttempts
	}
	ec.Metrics = ledger.NewMetrics(reg)
	return ec
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	pol, err := policy.New(cfg.Policy, cat)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:      cfg,
		store:    store,
		engine:   ledger.NewWithConfig(store, cat, pol, engineConfig(cfg, reg)),
		render:   report.New(report.WithNames(cfg.MemberName)),
		registry: reg,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// autoBackup snapshots the database before risky work. Failures are logged,
// never fatal; stores that cannot be backed up are skipped silently.
func (a *app) autoBackup(ctx context.Context, reason string) {
	manager, err := a.store.NewBackupManager()
	if err != nil {
		if !errors.Is(err, storage.ErrBackupUnsupported) {
			slog.Warn("Failed to prepare automatic backup", "reason", reason, "error", err)
		}
		return
	}

	info, err := manager.AutoBackup(ctx, reason)
	if err != nil {
		slog.Warn("Automatic backup failed", "reason", reason, "error", err)
		return
	}
	slog.Info("Created automatic backup", "id", info.ID, "dir", manager.Dir())
}

// withApp opens the ledger for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Debug("Failed to close database", "error", err)
		}
	}()
	return fn(a)
}

// explain attaches member-facing wording to ledger rejections.
func explain(err error) error {
	var userErr *common.UserError
	if err == nil || errors.As(err, &userErr) {
		return err
	}

	var msg string
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity):
		msg = "Quantity must be a whole number greater than zero."
	case errors.Is(err, ledger.ErrStorageFull):
		msg = "The bank has no room left for that item."
	// ErrItemNotFound also matches ErrInsufficientQuantity.
	case errors.Is(err, ledger.ErrItemNotFound):
		msg = "That item is not in the bank."
	case errors.Is(err, ledger.ErrInsufficientQuantity):
		msg = "You do not hold that many."
	case errors.Is(err, model.ErrSelectionConsumed):
		msg = "That selection was already used; start again."
	case errors.Is(err, ledger.ErrStoreUnavailable):
		msg = "The bank is busy right now, try again in a moment."
	default:
		return err
	}
	return common.NewUserError(msg, err)
}

// Package ledger implements the clan bank's deposit, withdrawal and transfer
// rules on top of a transactional ledger store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/policy"
	"github.com/Veraticus/clanbank/internal/service"
	"github.com/Veraticus/clanbank/internal/storage"
)

// Catalog is the part of the item catalog the engine uses.
type Catalog interface {
	Search(term string, limit int) []model.CatalogMatch
	SearchHoldings(term string, holdings []model.UserHolding, limit int) []model.CatalogMatch
	Lookup(name string) (model.CatalogEntry, bool)
	BestMatch(name string) (model.CatalogEntry, bool)
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Clock           func() time.Time
	Metrics         *Metrics
	Retry           service.RetryOptions
	StoreTimeout    time.Duration
	SearchLimit     int
	LeaderboardSize int
}

// Default engine settings.
const (
	DefaultStoreTimeout    = 5 * time.Second
	DefaultSearchLimit     = 25
	DefaultLeaderboardSize = 10
)

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:    DefaultStoreTimeout,
		SearchLimit:     DefaultSearchLimit,
		LeaderboardSize: DefaultLeaderboardSize,
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
		Clock: time.Now,
	}
}

// Engine runs every ledger mutation as one store transaction.
type Engine struct {
	store   service.LedgerStore
	catalog Catalog
	policy  *policy.Policy
	cfg     Config
}

// New creates an engine with DefaultConfig.
func New(store service.LedgerStore, catalog Catalog, pol *policy.Policy) *Engine {
	return NewWithConfig(store, catalog, pol, DefaultConfig())
}

// NewWithConfig creates an engine with explicit settings.
func NewWithConfig(store service.LedgerStore, catalog Catalog, pol *policy.Policy, cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = defaults.SearchLimit
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = defaults.LeaderboardSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = defaults.Retry
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Engine{
		store:   store,
		catalog: catalog,
		policy:  pol,
		cfg:     cfg,
	}
}

// Policy returns the category and reward policy in use.
func (e *Engine) Policy() *policy.Policy {
	return e.policy
}

// withTx runs fn inside a transaction locked on itemKey, retrying the whole
// attempt when the store reports a transient failure.
func (e *Engine) withTx(ctx context.Context, itemKey string, fn func(context.Context, service.Transaction) error) error {
	err := common.WithRetry(ctx, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()

		tx, err := e.store.BeginTx(attemptCtx, itemKey)
		if err != nil {
			return classify(err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(attemptCtx, tx); err != nil {
			return classify(err)
		}
		if err := tx.Commit(); err != nil {
			return classify(fmt.Errorf("failed to commit: %w", err))
		}
		return nil
	}, e.cfg.Retry)

	return unwrapAttempt(err)
}

// classify tags an attempt error for WithRetry.
func classify(err error) error {
	switch {
	case isDomainError(err):
		return common.Permanent(err)
	case storage.IsTransient(err):
		return common.Transient(fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
	default:
		return common.Permanent(err)
	}
}

func unwrapAttempt(err error) error {
	if err == nil {
		return nil
	}

	var retryErr *common.RetryableError
	if errors.As(err, &retryErr) && !errors.Is(err, common.ErrMaxRetries) {
		err = retryErr.Err
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, common.ErrMaxRetries), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

// read bounds a query by the store timeout and maps transient failures.
func (e *Engine) read(ctx context.Context, fn func(context.Context) error) error {
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	if err := fn(readCtx); err != nil {
		if storage.IsTransient(err) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}
	return nil
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock().UTC()
}

// resolveKey normalizes item and maps catalog aliases to the entry's key so
// every spelling shares one balance.
func (e *Engine) resolveKey(item string) string {
	key := model.NormalizeKey(item)
	if e.catalog != nil && key != "" {
		if entry, ok := e.catalog.Lookup(key); ok {
			return entry.Key
		}
	}
	return key
}

func (e *Engine) displayName(itemKey string) string {
	if e.catalog != nil {
		if entry, ok := e.catalog.Lookup(itemKey); ok {
			return entry.DisplayName
		}
	}
	return itemKey
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return nil
}

func requireItem(itemKey string) error {
	if itemKey == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidRequest)
	}
	return nil
}

func requireQuantity(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	return nil
}

// balanceOf returns 0 for items never deposited.
func balanceOf(ctx context.Context, reader service.LedgerReader, itemKey string) (int, bool, error) {
	b, err := reader.GetBalance(ctx, itemKey)
	switch {
	case err == nil:
		return b.Quantity, true, nil
	case errors.Is(err, common.ErrNotFound):
		return 0, false, nil
	default:
		return 0, false, err
	}
}

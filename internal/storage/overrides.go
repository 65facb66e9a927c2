package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
)

// GetCategoryOverride retrieves a learned category for an item.
func (s *SQLStorage) GetCategoryOverride(ctx context.Context, itemKey string) (model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return model.CategoryUnclassified, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return model.CategoryUnclassified, err
	}

	// Overrides are never replaced, so a cached value is always current.
	if category, ok := s.getCachedOverride(itemKey); ok {
		return category, nil
	}

	category, err := s.getCategoryOverrideTx(ctx, s.db, itemKey)
	if err != nil {
		return category, err
	}
	s.cacheOverride(model.NormalizeKey(itemKey), category)
	return category, nil
}

func (s *SQLStorage) getCategoryOverrideTx(ctx context.Context, q queryable, itemKey string) (model.Category, error) {
	itemKey = model.NormalizeKey(itemKey)

	var category string
	err := q.QueryRowContext(ctx, s.q(`
		SELECT category FROM category_overrides WHERE item_key = ?
	`), itemKey).Scan(&category)

	if errors.Is(err, sql.ErrNoRows) {
		return model.CategoryUnclassified, common.ErrNotFound
	}
	if err != nil {
		return model.CategoryUnclassified, fmt.Errorf("failed to get category override: %w", err)
	}

	return model.Category(category), nil
}

// saveCategoryOverrideTx inserts the override unless one already exists. It
// reports whether a row was written.
func (s *SQLStorage) saveCategoryOverrideTx(ctx context.Context, q queryable, itemKey string, category model.Category) (bool, error) {
	result, err := q.ExecContext(ctx, s.q(`
		INSERT INTO category_overrides (item_key, category, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO NOTHING
	`), model.NormalizeKey(itemKey), string(category), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to save category override: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check category override insert: %w", err)
	}
	return n > 0, nil
}

// GetAllCategoryOverrides retrieves every learned category.
func (s *SQLStorage) GetAllCategoryOverrides(ctx context.Context) ([]model.CategoryOverride, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAllCategoryOverridesTx(ctx, s.db)
}

func (s *SQLStorage) getAllCategoryOverridesTx(ctx context.Context, q queryable) ([]model.CategoryOverride, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_key, category, created_at
		FROM category_overrides
		ORDER BY item_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var overrides []model.CategoryOverride
	for rows.Next() {
		var o model.CategoryOverride
		var category string
		if err := rows.Scan(&o.ItemKey, &category, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category override: %w", err)
		}
		o.Category = model.Category(category)
		overrides = append(overrides, o)
	}

	return overrides, rows.Err()
}

// getCachedOverride retrieves an override from the cache.
func (s *SQLStorage) getCachedOverride(itemKey string) (model.Category, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	category, ok := s.overrideCache[model.NormalizeKey(itemKey)]
	return category, ok
}

// cacheOverride adds an override to the cache.
func (s *SQLStorage) cacheOverride(itemKey string, category model.Category) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if _, exists := s.overrideCache[itemKey]; !exists {
		s.overrideCache[itemKey] = category
	}
}

// WarmOverrideCache loads all overrides into the cache.
func (s *SQLStorage) WarmOverrideCache(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	overrides, err := s.GetAllCategoryOverrides(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.overrideCache = make(map[string]model.Category, len(overrides))
	for _, o := range overrides {
		s.overrideCache[o.ItemKey] = o.Category
	}
	return nil
}

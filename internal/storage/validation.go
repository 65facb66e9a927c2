// Package storage provides the data persistence layer for the clan bank.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/clanbank/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrNegativeQuantity  = errors.New("quantity cannot be negative")
	ErrInvalidPoints     = errors.New("reputation points must be a finite non-negative number")
	ErrInvalidHistory    = errors.New("invalid history entry")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrBackupUnsupported = errors.New("backups require a file-backed sqlite database")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateQuantity(quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeQuantity, quantity)
	}
	return nil
}

func validatePoints(points float64) error {
	if points < 0 || math.IsNaN(points) || math.IsInf(points, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPoints, points)
	}
	return nil
}

// validateHistoryEntry validates a history entry before it is appended.
func validateHistoryEntry(entry *model.HistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: history entry", ErrNilParameter)
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidHistory)
	}
	if !entry.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidHistory, entry.Action)
	}
	if strings.TrimSpace(entry.Item) == "" {
		return fmt.Errorf("%w: missing item", ErrInvalidHistory)
	}
	if entry.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidHistory)
	}
	return nil
}

func validateCategory(category model.Category) error {
	if !category.IsClassified() {
		return fmt.Errorf("%w: empty category", ErrInvalidCategory)
	}
	return nil
}

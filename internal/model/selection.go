package model

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrSelectionConsumed is returned when a selection is used a second time.
var ErrSelectionConsumed = errors.New("selection already consumed")

// Selection captures what a member picked in a multi-step prompt (item and
// quantity) before the final step names a recipient. It can be consumed
// exactly once.
type Selection struct {
	CreatedAt   time.Time
	InitiatorID string
	ItemKey     string
	Quantity    int
	ID          uuid.UUID
	consumed    atomic.Bool
}

// NewSelection creates an unconsumed selection.
func NewSelection(initiatorID, item string, quantity int) *Selection {
	return &Selection{
		ID:          uuid.New(),
		InitiatorID: initiatorID,
		ItemKey:     NormalizeKey(item),
		Quantity:    quantity,
		CreatedAt:   time.Now(),
	}
}

// Consume marks the selection used. Only the first call succeeds.
func (s *Selection) Consume() error {
	if !s.consumed.CompareAndSwap(false, true) {
		return ErrSelectionConsumed
	}
	return nil
}

// Consumed reports whether Consume has already succeeded.
func (s *Selection) Consumed() bool {
	return s.consumed.Load()
}

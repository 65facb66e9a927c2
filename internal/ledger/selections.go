package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/clanbank/internal/model"
)

// DefaultSelectionTTL is how long a pending selection stays claimable.
const DefaultSelectionTTL = 10 * time.Minute

// SelectionRegistry holds selections between the step where a member picks
// an item and quantity and the step that names the recipient. It is safe for
// concurrent use.
type SelectionRegistry struct {
	clock      func() time.Time
	selections map[uuid.UUID]*model.Selection
	ttl        time.Duration
	mu         sync.Mutex
}

// NewSelectionRegistry creates a registry. A non-positive ttl uses
// DefaultSelectionTTL and a nil clock uses time.Now.
func NewSelectionRegistry(ttl time.Duration, clock func() time.Time) *SelectionRegistry {
	if ttl <= 0 {
		ttl = DefaultSelectionTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &SelectionRegistry{
		clock:      clock,
		selections: make(map[uuid.UUID]*model.Selection),
		ttl:        ttl,
	}
}

// Create validates and stores a new selection.
func (r *SelectionRegistry) Create(initiatorID, item string, quantity int) (*model.Selection, error) {
	initiatorID = strings.TrimSpace(initiatorID)
	if err := requireUser(initiatorID); err != nil {
		return nil, err
	}
	if err := requireItem(model.NormalizeKey(item)); err != nil {
		return nil, err
	}
	if err := requireQuantity(quantity); err != nil {
		return nil, err
	}

	sel := model.NewSelection(initiatorID, item, quantity)
	sel.CreatedAt = r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	r.selections[sel.ID] = sel
	return sel, nil
}

// Take removes and returns the selection with id. Only the member who
// created it can take it.
func (r *SelectionRegistry) Take(id uuid.UUID, initiatorID string) (*model.Selection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()

	sel, ok := r.selections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectionNotFound, id)
	}
	if sel.InitiatorID != strings.TrimSpace(initiatorID) {
		return nil, fmt.Errorf("%w: %s", ErrSelectionNotFound, id)
	}
	delete(r.selections, id)
	return sel, nil
}

// Len returns the number of live selections.
func (r *SelectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked()
	return len(r.selections)
}

func (r *SelectionRegistry) pruneLocked() {
	cutoff := r.clock().Add(-r.ttl)
	for id, sel := range r.selections {
		if sel.CreatedAt.Before(cutoff) {
			delete(r.selections, id)
		}
	}
}

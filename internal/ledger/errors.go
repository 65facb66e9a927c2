package ledger

import (
	"errors"
	"fmt"

	"github.com/Veraticus/clanbank/internal/model"
)

// Ledger errors. Every rejected operation leaves the store untouched.
var (
	ErrInvalidQuantity      = errors.New("quantity must be a positive whole number")
	ErrInvalidRequest       = errors.New("invalid ledger request")
	ErrStorageFull          = errors.New("storage full")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	// ErrItemNotFound also matches ErrInsufficientQuantity.
	ErrItemNotFound      = fmt.Errorf("%w: item not found", ErrInsufficientQuantity)
	ErrStoreUnavailable  = errors.New("ledger store unavailable")
	ErrSelectionNotFound = errors.New("selection not found or expired")
)

// isDomainError reports whether err is a rejection that retrying cannot fix.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidQuantity,
		ErrInvalidRequest,
		ErrStorageFull,
		ErrInsufficientQuantity,
		ErrSelectionNotFound,
		model.ErrSelectionConsumed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

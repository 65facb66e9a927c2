package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseQuantity parses a quantity typed by a member. Only plain positive
// whole numbers are accepted: no signs, decimals or thousands separators.
func ParseQuantity(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidQuantity)
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, trimmed)
		}
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, trimmed)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, trimmed)
	}
	return n, nil
}

package dialogue

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAmount is returned for a missing, non-numeric, non-finite or
	// non-positive amount on an entry command.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNoPendingEntry marks a selection that matched no live entry. Callers
	// treat it as an ignored tap, not a failure.
	ErrNoPendingEntry = errors.New("no pending entry")
)

// ParseAmount reads a positive amount such as "12", "12.50", "$1,200" or
// "Ksh1,200.00".
func ParseAmount(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	for _, prefix := range []string{"$", "Ksh", "KSh", "ksh"} {
		clean = strings.TrimPrefix(clean, prefix)
	}
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, fmt.Errorf("%w: missing amount", ErrInvalidAmount)
	}

	amount, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %q must be a positive number", ErrInvalidAmount, s)
	}
	return amount, nil
}

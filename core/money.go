package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	minorUnitsPerMajor = decimal.NewFromInt(100)
	maxMinorUnits      = decimal.NewFromInt(math.MaxInt64)
)

// FormatMinorUnits renders pesewas/kobo as a major-unit string, e.g. 1500 -> "15.00".
func FormatMinorUnits(amountMinor int64) string {
	return decimal.NewFromInt(amountMinor).Div(minorUnitsPerMajor).StringFixed(2)
}

// ParseMajorUnits converts a major-unit amount ("15", "15.5") into minor
// units. Fractions below one minor unit are rejected rather than rounded.
func ParseMajorUnits(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("core: amount is required")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("core: invalid amount %q: %w", value, err)
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("core: amount must be positive")
	}
	minor := amount.Mul(minorUnitsPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("core: amount %q has more than two decimal places", value)
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("core: amount %q is too large", value)
	}
	return minor.IntPart(), nil
}

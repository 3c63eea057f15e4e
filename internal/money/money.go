// Package money converts between display amounts (major units, e.g. "5000.50")
// and the int64 minor units the ledger stores.
package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/tiered_ledger/internal/apperr"
)

// Scale is the number of minor-unit digits (paise per rupee).
const Scale = 2

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// Parse converts a major-unit string into minor units.
func Parse(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperr.Validationf("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, apperr.Validationf("invalid amount %q", raw)
	}
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, apperr.Validationf("amount %q has more than %d decimal places", raw, Scale)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, apperr.Validationf("amount %q out of range", raw)
	}
	return minor.IntPart(), nil
}

// ParsePositive is Parse plus the strictly-positive rule every ledger amount obeys.
func ParsePositive(raw string) (int64, error) {
	v, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, apperr.Validationf("amount must be positive, got %s", raw)
	}
	return v, nil
}

// Format renders minor units as a fixed two-decimal major-unit string.
func Format(minor int64) string {
	return decimal.New(minor, -Scale).StringFixed(Scale)
}

// Package money holds the decimal helpers used for every monetary value.
//
// Amounts travel through the services as decimal.Decimal and are persisted as
// integer minor units (cents) so that counters can be incremented exactly by
// the document store.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for stored amounts.
const Scale = 2

var hundred = decimal.NewFromInt(100)

// ErrInvalidAmount indicates a value that cannot be parsed as money.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Round rounds half away from zero to two places, i.e. half-up for the
// non-negative values the ledgers deal with.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Cents converts an amount to minor units after rounding.
func Cents(d decimal.Decimal) int64 {
	return Round(d).Shift(Scale).IntPart()
}

// FromCents converts minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Scale)
}

// Parse reads a user supplied amount such as "1,250.50" or "₹35".
func Parse(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "₹")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// Percent returns d / 100.
func Percent(d decimal.Decimal) decimal.Decimal {
	return d.Div(hundred)
}

// PercentChange returns (current-previous)/previous*100 rounded to two places.
// The boolean is false when previous is zero and the change is undefined.
func PercentChange(current, previous decimal.Decimal) (decimal.Decimal, bool) {
	if previous.IsZero() {
		return decimal.Zero, false
	}
	return Round(current.Sub(previous).Div(previous).Mul(hundred)), true
}

// ClampZero returns d, or zero when d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

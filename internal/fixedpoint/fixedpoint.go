// Package fixedpoint provides fixed-point decimal helpers for monetary and
// token quantities. All amounts cross component boundaries as decimal strings
// with exactly Places fractional digits; binary floating point is never used.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits carried by every persisted
// quantity. It matches the on-chain asset precision.
const Places = 7

// ErrMalformed is returned when a string is not a valid decimal number.
var ErrMalformed = errors.New("malformed decimal string")

// Parse parses a decimal string. Returns ErrMalformed on empty or
// non-numeric input.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty string", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return d, nil
}

// MustParse parses a decimal string and panics on failure.
// Intended for constants and tests only.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round rounds to Places fractional digits, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders d as a fixed-point string with exactly Places fractional
// digits, rounding half away from zero. This is the only representation
// written to storage.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Div divides a by b rounded to Places digits, half away from zero.
// The caller must guard against a zero divisor.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, Places)
}

// Package core provides money parsing and formatting utilities.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// minAmountExponent bounds the decimal exponent of a parsed amount. Text with
// a longer fraction is taken at float64 precision instead.
const minAmountExponent = -32

// ParseAmount converts user-entered text into a signed decimal amount.
//
// Any text strconv.ParseFloat accepts as a finite number is accepted, in
// plain or exponent notation, with an optional sign. Empty text, NaN,
// infinities and values outside the float64 range fail with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("-4.5")  -> -4.5, nil
//	ParseAmount(" 100 ") -> 100, nil
//	ParseAmount("1e3")   -> 1000, nil
//	ParseAmount("1e400") -> 0, ErrInvalidAmount
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrInvalidAmount
	}
	// The text keeps exact decimal digits; hex floats and overlong fractions
	// fall back to the float value.
	if d, err := decimal.NewFromString(s); err == nil && d.Exponent() >= minAmountExponent {
		return d, nil
	}
	return decimal.NewFromFloat(f), nil
}

// FormatAmount renders an amount with exactly two decimals, e.g. "-1500.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatDollars renders the absolute value of an amount with a dollar sign,
// e.g. "$1500.00" for -1500.
func FormatDollars(d decimal.Decimal) string {
	return "$" + d.Abs().StringFixed(2)
}

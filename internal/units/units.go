// Package units converts between integer base units and human-readable
// decimal amounts.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of the native currency used for fees.
const NativeDecimals uint8 = 18

var (
	ErrNegative      = errors.New("amount is negative")
	ErrTooPrecise    = errors.New("amount has more decimal places than the token supports")
	ErrOutOfRange    = errors.New("amount does not fit in 256 bits")
	ErrEmptyAmount   = errors.New("amount is empty")
	ErrNotBaseAmount = errors.New("base amount must be a non-negative integer")
)

// Parse converts a human amount such as "12.5" into base units.
func Parse(s string, decimals uint8) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d, decimals)
}

// FromDecimal scales d by 10^decimals and converts it to base units.
func FromDecimal(d decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegative
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%s with %d decimals: %w", d.String(), decimals, ErrTooPrecise)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOutOfRange
	}
	return v, nil
}

// MustParse is Parse for constants; it panics on bad input.
func MustParse(s string, decimals uint8) *uint256.Int {
	v, err := Parse(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// ToDecimal converts base units into a decimal with the given precision.
func ToDecimal(v *uint256.Int, decimals uint8) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals))
}

// Format renders base units as a human amount without trailing zeros.
func Format(v *uint256.Int, decimals uint8) string {
	return ToDecimal(v, decimals).String()
}

// ParseBase parses an integer amount already expressed in base units.
func ParseBase(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, ErrNotBaseAmount)
	}
	return v, nil
}

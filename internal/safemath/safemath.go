// Package safemath provides checked 256-bit unsigned arithmetic.
//
// Every operation returns a fresh value and never mutates its operands.
// Overflow and underflow are reported as reverts.ErrArithmeticOverflow.
package safemath

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/reverts"
)

// ErrDivisionByZero is returned when a divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

// Zero returns a new zero value.
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// U64 returns v as a 256-bit integer.
func U64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Copy returns an independent copy of v; nil is treated as zero.
func Copy(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

// Add returns a + b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add: %w", reverts.ErrArithmeticOverflow)
	}
	return z, nil
}

// Sub returns a - b, failing when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub: %w", reverts.ErrArithmeticOverflow)
	}
	return z, nil
}

// SaturatingSub returns a - b, or zero when b > a.
func SaturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Mul returns a * b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul: %w", reverts.ErrArithmeticOverflow)
	}
	return z, nil
}

// Div returns floor(a / b).
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns floor(a * b / c). The product is computed at 512-bit width,
// so only a quotient that does not fit 256 bits overflows.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, fmt.Errorf("muldiv: %w", reverts.ErrArithmeticOverflow)
	}
	return z, nil
}

// Product multiplies all factors, failing on the first overflow.
func Product(factors ...*uint256.Int) (*uint256.Int, error) {
	acc := uint256.NewInt(1)
	for _, f := range factors {
		next, err := Mul(acc, f)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// Sum adds all terms, failing on the first overflow.
func Sum(terms ...*uint256.Int) (*uint256.Int, error) {
	acc := new(uint256.Int)
	for _, t := range terms {
		next, err := Add(acc, t)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return Copy(a)
	}
	return Copy(b)
}

package safemath

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/reverts"
)

func maxU256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func TestAdd(t *testing.T) {
	z, err := Add(U64(2), U64(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), z.Uint64())

	_, err = Add(maxU256(), U64(1))
	assert.True(t, errors.Is(err, reverts.ErrArithmeticOverflow))
}

func TestSub(t *testing.T) {
	z, err := Sub(U64(5), U64(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), z.Uint64())

	_, err = Sub(U64(3), U64(5))
	assert.ErrorIs(t, err, reverts.ErrArithmeticOverflow)
}

func TestSaturatingSub(t *testing.T) {
	assert.True(t, SaturatingSub(U64(3), U64(5)).IsZero())
	assert.Equal(t, uint64(2), SaturatingSub(U64(5), U64(3)).Uint64())
}

func TestMul(t *testing.T) {
	z, err := Mul(U64(6), U64(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), z.Uint64())

	_, err = Mul(maxU256(), U64(2))
	assert.ErrorIs(t, err, reverts.ErrArithmeticOverflow)
}

func TestDiv(t *testing.T) {
	z, err := Div(U64(7), U64(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), z.Uint64())

	_, err = Div(U64(7), Zero())
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDiv(t *testing.T) {
	t.Run("floors", func(t *testing.T) {
		z, err := MulDiv(U64(10), U64(10), U64(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(33), z.Uint64())
	})

	t.Run("wide intermediate product", func(t *testing.T) {
		z, err := MulDiv(maxU256(), U64(4), U64(8))
		require.NoError(t, err)
		want := new(uint256.Int).Rsh(maxU256(), 1)
		assert.True(t, want.Eq(z))
	})

	t.Run("quotient overflow", func(t *testing.T) {
		_, err := MulDiv(maxU256(), U64(4), U64(2))
		assert.ErrorIs(t, err, reverts.ErrArithmeticOverflow)
	})

	t.Run("zero divisor", func(t *testing.T) {
		_, err := MulDiv(U64(1), U64(1), Zero())
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})
}

func TestProductAndSum(t *testing.T) {
	p, err := Product(U64(2), U64(3), U64(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(24), p.Uint64())

	s, err := Sum(U64(2), U64(3), U64(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), s.Uint64())

	_, err = Product(maxU256(), U64(2), U64(1))
	assert.ErrorIs(t, err, reverts.ErrArithmeticOverflow)
}

func TestOperandsNotMutated(t *testing.T) {
	a, b := U64(9), U64(4)
	_, _ = Add(a, b)
	_, _ = Sub(a, b)
	_, _ = Mul(a, b)
	_, _ = MulDiv(a, b, U64(2))
	assert.Equal(t, uint64(9), a.Uint64())
	assert.Equal(t, uint64(4), b.Uint64())
}

func TestCopyNil(t *testing.T) {
	assert.True(t, Copy(nil).IsZero())
	assert.True(t, IsZero(nil))
}

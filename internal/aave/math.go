/*

This file contains the fixed-point primitives of the lending protocol,
replicated bit-for-bit. Percentages are basis points over 1e4 with half-up
rounding, indices are ray (1e27) with half-up rounding, and every
multiply-before-divide goes through a 512-bit intermediate. Floating point is
never used.

*/

package aave

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrMathOverflow marks a product or sum that cannot fit in 256 bits.
	ErrMathOverflow = errors.New("fixed point overflow")
	// ErrDivisionByZero marks a zero divisor reaching a division primitive.
	ErrDivisionByZero = errors.New("division by zero")
)

var (
	percentageFactor     = uint256.NewInt(10_000)
	halfPercentageFactor = uint256.NewInt(5_000)

	// Ray is 1e27, the scale of liquidity and borrow indices.
	Ray = func() *uint256.Int {
		r, _ := uint256.FromDecimal("1000000000000000000000000000")
		return r
	}()
	halfRay = func() *uint256.Int {
		r, _ := uint256.FromDecimal("500000000000000000000000000")
		return r
	}()

	// Wad is 1e18, the health factor scale.
	Wad = uint256.NewInt(1_000_000_000_000_000_000)

	// MaxHealthFactor is the sentinel for a user with zero debt.
	MaxHealthFactor = new(uint256.Int).SetAllOne()
)

// MulDiv computes value*numerator/denominator with a 512-bit intermediate and
// truncation toward zero.
func MulDiv(value, numerator, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(value, numerator, denominator)
	if overflow {
		return nil, ErrMathOverflow
	}
	return result, nil
}

// PercentMul computes value*bps/1e4 with half-up rounding, matching the
// protocol's PercentageMath.
func PercentMul(value, bps *uint256.Int) (*uint256.Int, error) {
	if value.IsZero() || bps.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(value, bps)
	if overflow {
		return nil, ErrMathOverflow
	}
	sum, carry := new(uint256.Int).AddOverflow(product, halfPercentageFactor)
	if carry {
		return nil, ErrMathOverflow
	}
	return sum.Div(sum, percentageFactor), nil
}

// PercentDiv computes value*1e4/bps with half-up rounding.
func PercentDiv(value, bps *uint256.Int) (*uint256.Int, error) {
	if bps.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(value, percentageFactor)
	if overflow {
		return nil, ErrMathOverflow
	}
	half := new(uint256.Int).Div(bps, uint256.NewInt(2))
	sum, carry := new(uint256.Int).AddOverflow(product, half)
	if carry {
		return nil, ErrMathOverflow
	}
	return sum.Div(sum, bps), nil
}

// RayMul computes a*b/1e27 with half-up rounding, matching WadRayMath. The
// half-ray addend needs the 512-bit path because a*b alone can overflow.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	// floor(a*b/ray) plus the rounding correction from the remainder.
	quotient, overflow := new(uint256.Int).MulDivOverflow(a, b, Ray)
	if overflow {
		return nil, ErrMathOverflow
	}
	remainder := new(uint256.Int).MulMod(a, b, Ray)
	if remainder.Cmp(halfRay) >= 0 {
		one := uint256.NewInt(1)
		rounded, carry := new(uint256.Int).AddOverflow(quotient, one)
		if carry {
			return nil, ErrMathOverflow
		}
		return rounded, nil
	}
	return quotient, nil
}

// BaseValue converts a token amount to base currency:
// amount * price / 10^decimals.
func BaseValue(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return MulDiv(amount, price, unit)
}

// TokenAmount converts a base currency value back to token units:
// value * 10^decimals / price.
func TokenAmount(baseValue, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if price.IsZero() {
		return nil, ErrDivisionByZero
	}
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return MulDiv(baseValue, unit, price)
}

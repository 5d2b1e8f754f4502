// Package fixedpoint implements ray/wad fixed-point arithmetic over
// arbitrary-precision integers. Rounding is always half-up, matching the
// on-chain math of the indexed protocols bit-for-bit: ledger balances must
// reconcile exactly with the contracts, so rounding here is a correctness
// requirement, not a style choice.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Fixed-point scales. Ray carries 27 implied decimals, wad 18.
var (
	Ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// wadRayRatio is the 10^9 scale gap between wad and ray
	wadRayRatio = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)
)

func init() {
	// USD division must keep far more than 18 fractional digits so that
	// truncation cannot accumulate across millions of events.
	if decimal.DivisionPrecision < 36 {
		decimal.DivisionPrecision = 36
	}
}

// ErrDivisionByZero is returned when a ray division sees a zero denominator.
// This indicates an unconfigured asset and is a fatal invariant violation.
var ErrDivisionByZero = fmt.Errorf("fixedpoint: division by zero")

// halfUpDiv returns round((num) / den) with half-up rounding, den > 0
func halfUpDiv(num, den *big.Int) *big.Int {
	half := new(big.Int).Rsh(den, 1)
	out := new(big.Int).Add(num, half)
	return out.Div(out, den)
}

// RayMul returns round((a * b) / RAY) with half-up rounding
func RayMul(a, b *big.Int) *big.Int {
	return halfUpDiv(new(big.Int).Mul(a, b), Ray)
}

// RayDiv returns round((a * RAY) / b) with half-up rounding.
// A zero denominator is a programming error and fails fast.
func RayDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	return halfUpDiv(new(big.Int).Mul(a, Ray), b), nil
}

// RayToWad converts a ray-scale amount to wad scale, rounding half-up
// across the 10^9 scale gap
func RayToWad(a *big.Int) *big.Int {
	return halfUpDiv(new(big.Int).Set(a), wadRayRatio)
}

// WadToRay converts a wad-scale amount to ray scale. The scale only
// increases, so the conversion is exact.
func WadToRay(a *big.Int) *big.Int {
	return new(big.Int).Mul(a, wadRayRatio)
}

// ToDecimal converts an integer token amount to a fixed-point decimal given
// the token's decimal count. The conversion is exact.
func ToDecimal(amount *big.Int, decimals int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FromDecimal converts a decimal back to an integer amount at the given
// decimal count, truncating any remaining fraction
func FromDecimal(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

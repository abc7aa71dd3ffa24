package arnsmachine

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalPrecision is the number of fractional digits kept between multiplications in
// iterated decimal arithmetic.
const DecimalPrecision int32 = 24

// MulFloor returns floor(amount × rate) in base units.
func MulFloor(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

// DivFloor returns floor(a / b) for non-negative a and positive b.
func DivFloor(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return a / b
}

// AddAmounts adds two non-negative amounts and reports false on overflow.
func AddAmounts(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// PowTruncated raises base to a non-negative integer power by repeated squaring, truncating
// every intermediate product to DecimalPrecision digits so the result is identical on
// every platform.
func PowTruncated(base decimal.Decimal, exp int64) decimal.Decimal {
	result := decimal.NewFromInt(1)
	b := base
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(b).Truncate(DecimalPrecision)
		}
		b = b.Mul(b).Truncate(DecimalPrecision)
		exp >>= 1
	}
	return result
}

// Permille returns signed/total in thousandths, rounded down.
func Permille(signed, total int64) int64 {
	if total == 0 {
		return 0
	}
	if signed > total {
		LogCLI("Permille called with a part larger than the whole", 2)
		signed = total
	}
	s := new(big.Rat)
	s.SetFrac64(signed, total)
	m := new(big.Rat)
	m.SetInt64(1000)
	s = s.Mul(s, m)
	return new(big.Int).Quo(s.Num(), s.Denom()).Int64()
}

// FormatTokens renders base units as display tokens, e.g. 1500000 -> "1.5".
func FormatTokens(amount int64) string {
	return decimal.New(amount, -6).String()
}

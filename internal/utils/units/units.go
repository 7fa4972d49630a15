package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Parses a decimal amount of whole units (e.g. "1.5") into minor units with `decimals` places.
// Amounts with more fractional digits than `decimals` are rejected rather than rounded.
func ToMinorUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// Formats minor units as a decimal string of whole units.
func FromMinorUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// Parses an exchange rate. Empty input is a zero rate.
func ParseRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid exchange rate %q: %w", s, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative exchange rate %q", s)
	}
	return rate, nil
}

// Converts token minor units to wei at `rate` tokens per native unit, rounding down.
// Both currencies use the same number of decimals so the rate applies to minor units directly.
func TokenToWei(token *big.Int, rate decimal.Decimal) (*big.Int, error) {
	if !rate.IsPositive() {
		return nil, fmt.Errorf("no exchange rate")
	}
	num := new(big.Int).Set(token)
	den := rate.Coefficient()
	if exp := rate.Exponent(); exp < 0 {
		num.Mul(num, pow10(-exp))
	} else {
		den.Mul(den, pow10(exp))
	}
	return num.Quo(num, den), nil
}

// Converts wei to token minor units at `rate`, rounding down.
func WeiToToken(wei *big.Int, rate decimal.Decimal) *big.Int {
	out := new(big.Int).Mul(wei, rate.Coefficient())
	if exp := rate.Exponent(); exp < 0 {
		return out.Quo(out, pow10(-exp))
	} else {
		return out.Mul(out, pow10(exp))
	}
}

func pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

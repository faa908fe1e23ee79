package strategy

import "github.com/shopspring/decimal"

// PrecisionCoefficient returns 10^decimals, the coefficient for a venue that
// accepts quantities with the given number of fractional digits.
func PrecisionCoefficient(decimals int) decimal.Decimal {
	if decimals < 0 {
		decimals = 0
	}
	return decimal.New(1, int32(decimals))
}

// FloorToStep truncates x down to a multiple of 1/precision.
func FloorToStep(x, precision decimal.Decimal) decimal.Decimal {
	if precision.Sign() <= 0 {
		return x
	}
	return x.Mul(precision).Floor().Div(precision)
}

// CeilToStep rounds x up to a multiple of 1/precision.
func CeilToStep(x, precision decimal.Decimal) decimal.Decimal {
	if precision.Sign() <= 0 {
		return x
	}
	return x.Mul(precision).Ceil().Div(precision)
}

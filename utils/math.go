// utils/math.go
package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxShares = decimal.NewFromInt(math.MaxInt64)

// Dec converts a float to a decimal using its shortest representation, so 0.2 stays 0.2.
func Dec(value float64) decimal.Decimal {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(value)
}

// FloorShares divides amount by price and floors to whole shares.
// Returns 0 for non-positive inputs and saturates at math.MaxInt64.
func FloorShares(amount, price decimal.Decimal) int64 {
	if !amount.IsPositive() || !price.IsPositive() {
		return 0
	}
	q := amount.Div(price).Floor()
	if q.GreaterThanOrEqual(maxShares) {
		return math.MaxInt64
	}
	return q.IntPart()
}

// Notional returns shares * price as a float, computed in decimal.
func Notional(shares int64, price float64) float64 {
	f, _ := decimal.NewFromInt(shares).Mul(Dec(price)).Float64()
	return f
}

package curve

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal scales a raw on-chain amount down by the token decimals.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ToFloat is ToDecimal for display values.
func ToFloat(amount *big.Int, decimals uint8) float64 {
	value, _ := ToDecimal(amount, decimals).Float64()
	return value
}

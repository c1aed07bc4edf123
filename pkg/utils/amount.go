package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the fixed decimal scale of the tipped token.
const DefaultDecimals int32 = 18

// ToBaseUnits converts a human amount to the token's smallest unit,
// truncating anything below 10^-decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts a raw integer amount to human units. Exact.
func FromBaseUnits(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

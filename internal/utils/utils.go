package utils

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// LegacyDecFromDecimal converts an arbitrary precision decimal into an 18 digit
// fixed point share value. Digits beyond the 18th fractional place are rounded.
func LegacyDecFromDecimal(d decimal.Decimal) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(d.StringFixed(sdkmath.LegacyPrecision))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("failed to convert %s: %w", d, err)
	}
	return v, nil
}

// DecimalFromLegacyDec converts a fixed point share value into a decimal without loss
func DecimalFromLegacyDec(d sdkmath.LegacyDec) decimal.Decimal {
	return decimal.RequireFromString(d.String())
}

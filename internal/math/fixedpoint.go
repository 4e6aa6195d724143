// internal/math/fixedpoint.go
package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines the fixed-point precision of a protocol value.
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Lending-pool account scales
	BaseCurrencyConfig = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // USD, 0.00000001
	HealthFactorConfig = DecimalConfig{DecimalPrecision: 18, Scale: 0}          // wad; scale does not fit int64
	PercentageConfig   = DecimalConfig{DecimalPrecision: 4, Scale: 10_000}      // basis points of 1
	OraclePriceConfig  = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // Aave oracle asset prices
)

// Decode returns raw / 10^decimals as a float64.
// Precision loss from the conversion is accepted: results are used for
// display and estimation, never settlement. A nil raw value decodes to 0.
func Decode(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).InexactFloat64()
}

// DecodeUint64 is Decode for values that fit a uint64.
func DecodeUint64(raw uint64, decimals int) float64 {
	return Decode(new(big.Int).SetUint64(raw), decimals)
}

// Decode converts a raw value using this config's precision.
func (c DecimalConfig) Decode(raw *big.Int) float64 {
	return Decode(raw, c.DecimalPrecision)
}

// Encode is the inverse of Decode: value * 10^decimals, rounded half-even.
func Encode(value float64, decimals int) *big.Int {
	d := decimal.NewFromFloat(value).Shift(int32(decimals))
	return d.RoundBank(0).BigInt()
}

// Encode converts a display value back into this config's raw scale.
func (c DecimalConfig) Encode(value float64) *big.Int {
	return Encode(value, c.DecimalPrecision)
}

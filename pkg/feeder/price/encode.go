package price

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the largest precision accepted by Encode.
const MaxDecimals = 18

// maxMantissa is the first float64 that no longer fits in a uint64 (2^64).
var maxMantissa = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64), 0)

// Encoded is an asset price as an integer mantissa at a fixed precision:
// the price equals Mantissa / 10^Decimals.
type Encoded struct {
	AssetID  string `json:"asset_id"`
	Mantissa uint64 `json:"multiplier"`
	Decimals uint8  `json:"decimals"`
}

// Encode returns floor(p * 10^decimals) as an Encoded price. The scaling is
// done in float64 and truncated, never rounded, so the last digit matches what
// other nodes publish for the same input.
func Encode(assetID string, p float64, decimals uint8) (Encoded, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return Encoded{}, fmt.Errorf("%w: %v", ErrInvalidPrice, p)
	}
	if decimals > MaxDecimals {
		return Encoded{}, fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}

	scaled := math.Floor(p * math.Pow10(int(decimals)))
	if math.IsInf(scaled, 0) || decimal.NewFromFloat(scaled).GreaterThanOrEqual(maxMantissa) {
		return Encoded{}, fmt.Errorf("%w: %v at %d decimals", ErrOverflow, p, decimals)
	}

	return Encoded{
		AssetID:  assetID,
		Mantissa: uint64(scaled),
		Decimals: decimals,
	}, nil
}

// Decimal returns the encoded value as an exact decimal.
func (e Encoded) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(e.Mantissa), -int32(e.Decimals))
}

// Float returns the encoded value as a float64.
func (e Encoded) Float() float64 {
	f, _ := e.Decimal().Float64()
	return f
}

// String renders the encoded value with exactly Decimals fractional digits.
func (e Encoded) String() string {
	return e.Decimal().StringFixed(int32(e.Decimals))
}

package price

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		decimals uint8
		want     uint64
	}{
		{name: "near four decimals", price: 3.5, decimals: 4, want: 35000},
		{name: "truncates not rounds", price: 1.23456789, decimals: 4, want: 12345},
		{name: "just below next unit", price: 0.99999, decimals: 4, want: 9999},
		{name: "zero decimals", price: 97123.98, decimals: 0, want: 97123},
		{name: "below resolution", price: 0.00001, decimals: 4, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode("asset", tt.price, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Mantissa)
			assert.Equal(t, tt.decimals, got.Decimals)
			assert.Equal(t, "asset", got.AssetID)
		})
	}
}

func TestEncode_MatchesFloorAndRoundTrips(t *testing.T) {
	prices := []float64{0.0523, 1, 2.718281828, 3.55, 42.5, 3521.77, 97123.456789}
	for _, p := range prices {
		for d := uint8(0); d <= 8; d++ {
			got, err := Encode("x", p, d)
			require.NoError(t, err)

			scale := math.Pow10(int(d))
			assert.Equal(t, uint64(math.Floor(p*scale)), got.Mantissa, "price %v decimals %d", p, d)
			assert.InDelta(t, p, got.Float(), 1/scale+1e-9, "price %v decimals %d", p, d)
		}
	}
}

func TestEncode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		decimals uint8
		wantErr  error
	}{
		{name: "zero", price: 0, decimals: 4, wantErr: ErrInvalidPrice},
		{name: "negative", price: -1, decimals: 4, wantErr: ErrInvalidPrice},
		{name: "nan", price: math.NaN(), decimals: 4, wantErr: ErrInvalidPrice},
		{name: "inf", price: math.Inf(1), decimals: 4, wantErr: ErrInvalidPrice},
		{name: "too many decimals", price: 1, decimals: 19, wantErr: ErrInvalidDecimals},
		{name: "overflow", price: 1e12, decimals: 18, wantErr: ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode("x", tt.price, tt.decimals)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncoded_String(t *testing.T) {
	e := Encoded{AssetID: "near", Mantissa: 35000, Decimals: 4}
	assert.Equal(t, "3.5000", e.String())
	assert.Equal(t, 3.5, e.Float())

	e = Encoded{AssetID: "btc", Mantissa: 97123, Decimals: 0}
	assert.Equal(t, "97123", e.String())
}

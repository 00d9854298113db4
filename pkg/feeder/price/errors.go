// Package price converts consensus prices into the fixed-point form the
// oracle contract stores.
package price

import "errors"

var (
	// ErrInvalidPrice indicates a price that is not finite and strictly positive.
	ErrInvalidPrice = errors.New("price must be finite and positive")
	// ErrOverflow indicates that the scaled price does not fit in a uint64.
	ErrOverflow = errors.New("scaled price overflows uint64")
	// ErrInvalidDecimals indicates a precision above MaxDecimals.
	ErrInvalidDecimals = errors.New("decimals out of range")
)

// Package tx submits contract change calls on behalf of the node account.
package tx

import "errors"

var (
	// ErrTransactionRejected indicates that the relay refused or failed the call.
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrInvalidParameter indicates that an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")
)

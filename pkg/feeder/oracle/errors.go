// Package oracle wraps the NEAR oracle contract used to publish prices.
package oracle

import "errors"

var (
	// ErrNotAuthorized indicates that the node is still not authorized after registering.
	ErrNotAuthorized = errors.New("node is not authorized by the oracle contract")
	// ErrPriceNotFound indicates that the contract has no fresh price for the asset.
	ErrPriceNotFound = errors.New("no price on chain")
	// ErrPriceMismatch indicates that the on-chain price differs from the reported one.
	ErrPriceMismatch = errors.New("on-chain price differs from reported price")
	// ErrInvalidResponse indicates that a view call returned unexpected JSON.
	ErrInvalidResponse = errors.New("invalid contract response")
)

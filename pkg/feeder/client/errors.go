// Package client provides a NEAR JSON-RPC client with endpoint failover.
package client

import "errors"

var (
	// ErrNoEndpointsRequired indicates that at least one RPC endpoint is required.
	ErrNoEndpointsRequired = errors.New("at least one RPC endpoint is required")
	// ErrAllAttemptsFailed indicates that all attempts failed across RPC endpoints.
	ErrAllAttemptsFailed = errors.New("all attempts failed across RPC endpoints")
	// ErrUnexpectedStatus indicates a non-200 HTTP response from an RPC endpoint.
	ErrUnexpectedStatus = errors.New("unexpected RPC HTTP status")
	// ErrRPC indicates that the node answered with a JSON-RPC error object.
	ErrRPC = errors.New("rpc error")
	// ErrContractExecution indicates that a view function failed inside the contract.
	ErrContractExecution = errors.New("contract execution failed")
)

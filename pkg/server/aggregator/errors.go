// Package aggregator provides price aggregation strategies.
package aggregator

import "errors"

var (
	// ErrNoSources indicates that the asset has no configured sources.
	ErrNoSources = errors.New("no sources configured")
	// ErrNoValidReadings indicates that no source produced a usable price.
	ErrNoValidReadings = errors.New("no valid source readings")
	// ErrFetchPanic indicates that fetching a source panicked.
	ErrFetchPanic = errors.New("source fetch panicked")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)

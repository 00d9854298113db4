// Package scheduler drives the periodic fetch, aggregate and report cycle.
package scheduler

import "errors"

// Scheduler errors.
var (
	ErrBelowMinSources = errors.New("fewer contributing sources than min_sources")
	ErrAssetPanic      = errors.New("asset processing panicked")
	ErrNoAssets        = errors.New("no assets to schedule")
)

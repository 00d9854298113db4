package aggregator

import (
	"context"
	"fmt"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/server/sources"
)

const (
	// ModeMedian reduces readings to their median.
	ModeMedian = "median"
)

// Aggregator turns the configured sources of one asset into a consensus price.
type Aggregator interface {
	// Aggregate queries every source of the asset and reduces the valid
	// readings. It fails when no source produced a valid price.
	Aggregate(ctx context.Context, asset config.AssetConfig) (AggregatedPrice, error)
}

// NewAggregator creates an aggregator based on the specified mode.
func NewAggregator(mode string, fetcher sources.PriceFetcher, logger *logging.Logger) (Aggregator, error) {
	switch mode {
	case "", ModeMedian:
		return NewMedianAggregator(fetcher, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: median)", ErrUnknownMode, mode)
	}
}

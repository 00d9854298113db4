package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/metrics"
	"github.com/justmert/near-oracle/pkg/server/sources"
)

// MedianAggregator queries all sources of an asset concurrently and takes the
// median of the valid readings.
type MedianAggregator struct {
	fetcher sources.PriceFetcher
	logger  *logging.Logger
	now     func() time.Time
}

// Ensure MedianAggregator implements Aggregator interface.
var _ Aggregator = (*MedianAggregator)(nil)

// NewMedianAggregator creates a new median aggregator.
func NewMedianAggregator(fetcher sources.PriceFetcher, logger *logging.Logger) *MedianAggregator {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &MedianAggregator{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
}

// Aggregate computes the median price of an asset.
func (a *MedianAggregator) Aggregate(ctx context.Context, asset config.AssetConfig) (AggregatedPrice, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(ModeMedian, time.Since(start))
	}()

	if len(asset.Sources) == 0 {
		return AggregatedPrice{}, fmt.Errorf("%s: %w", asset.ID, ErrNoSources)
	}

	readings := a.collect(ctx, asset.Sources)

	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		if r.Valid() {
			values = append(values, r.Price)
		}
	}

	if len(values) == 0 {
		metrics.RecordAggregationFailure(asset.ID)
		return AggregatedPrice{AssetID: asset.ID, Symbol: asset.Symbol, Readings: readings},
			fmt.Errorf("%s: %w (%d sources tried)", asset.ID, ErrNoValidReadings, len(readings))
	}

	result := AggregatedPrice{
		AssetID:   asset.ID,
		Symbol:    asset.Symbol,
		Price:     Median(values),
		Sources:   len(values),
		Timestamp: a.now(),
		Readings:  readings,
	}
	metrics.RecordAggregationSources(asset.ID, result.Sources)

	a.logger.Debug("Aggregated price",
		"asset", asset.ID,
		"price", result.Price,
		"sources", result.Sources,
		"configured", len(asset.Sources))
	return result, nil
}

// collect fetches every source in its own goroutine. Each fetch is bounded
// only by the fetcher's own deadline, so one slow source never cancels or
// delays another beyond that deadline.
func (a *MedianAggregator) collect(ctx context.Context, srcs []config.SourceConfig) []sources.Reading {
	type indexed struct {
		idx int
		sources.Reading
	}

	ch := make(chan indexed, len(srcs))
	for i, src := range srcs {
		go func(i int, src config.SourceConfig) {
			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("Source fetch panicked", "source", src.Name, "panic", r)
					ch <- indexed{idx: i, Reading: sources.Reading{
						Source:  src.Name,
						Err:     fmt.Errorf("%s: %w: %v", src.Name, ErrFetchPanic, r),
						Latency: time.Since(start),
					}}
				}
			}()

			price, err := a.fetcher.Fetch(ctx, src)
			ch <- indexed{idx: i, Reading: sources.Reading{
				Source:  src.Name,
				Price:   price,
				Err:     err,
				Latency: time.Since(start),
			}}
		}(i, src)
	}

	readings := make([]sources.Reading, len(srcs))
	for range srcs {
		r := <-ch
		readings[r.idx] = r.Reading
	}
	return readings
}

// Median returns the median of values. An empty slice yields 0; an even count
// yields the mean of the two middle values. values is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/server/sources"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, source config.SourceConfig) (float64, error) {
	args := m.Called(ctx, source.Name)
	return args.Get(0).(float64), args.Error(1)
}

// funcFetcher adapts a function to sources.PriceFetcher.
type funcFetcher func(ctx context.Context, source config.SourceConfig) (float64, error)

func (f funcFetcher) Fetch(ctx context.Context, source config.SourceConfig) (float64, error) {
	return f(ctx, source)
}

func asset(names ...string) config.AssetConfig {
	a := config.AssetConfig{ID: "near", Symbol: "NEAR", Decimals: 4}
	for _, n := range names {
		a.Sources = append(a.Sources, config.SourceConfig{Name: n, URL: "https://" + n + ".example", Path: "price"})
	}
	return a
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "empty", values: nil, want: 0},
		{name: "single", values: []float64{7}, want: 7},
		{name: "odd", values: []float64{1, 3, 2, 10, 5}, want: 3},
		{name: "even", values: []float64{4, 1, 3, 2}, want: 2.5},
		{name: "duplicates", values: []float64{2, 2, 2, 9}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Median(tt.values))
		})
	}
}

func TestMedian_DoesNotMutateInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestMedianAggregator_SkipsFailedSources(t *testing.T) {
	f := new(mockFetcher)
	f.On("Fetch", mock.Anything, "a").Return(1.0, nil)
	f.On("Fetch", mock.Anything, "b").Return(0.0, sources.ErrTransport)
	f.On("Fetch", mock.Anything, "c").Return(3.0, nil)
	f.On("Fetch", mock.Anything, "d").Return(2.0, nil)

	agg := NewMedianAggregator(f, logging.NewNoopLogger())
	got, err := agg.Aggregate(context.Background(), asset("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, 2.0, got.Price)
	assert.Equal(t, 3, got.Sources)
	assert.Equal(t, "near", got.AssetID)
	assert.False(t, got.Timestamp.IsZero())
	require.Len(t, got.Readings, 4)
	assert.Equal(t, "b", got.Readings[1].Source)
	require.Len(t, got.Failed(), 1)
	assert.Equal(t, "b", got.Failed()[0].Source)
	f.AssertExpectations(t)
}

func TestMedianAggregator_AllSourcesFail(t *testing.T) {
	f := new(mockFetcher)
	f.On("Fetch", mock.Anything, mock.Anything).Return(0.0, sources.ErrTimeout)

	agg := NewMedianAggregator(f, logging.NewNoopLogger())
	got, err := agg.Aggregate(context.Background(), asset("a", "b"))
	require.ErrorIs(t, err, ErrNoValidReadings)
	assert.Zero(t, got.Sources)
	assert.Len(t, got.Readings, 2)
}

func TestMedianAggregator_RejectsNonPositiveReadings(t *testing.T) {
	fetch := funcFetcher(func(_ context.Context, s config.SourceConfig) (float64, error) {
		if s.Name == "zero" {
			return 0, nil
		}
		return 4, nil
	})

	got, err := NewMedianAggregator(fetch, nil).Aggregate(context.Background(), asset("zero", "ok"))
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Price)
	assert.Equal(t, 1, got.Sources)
}

func TestMedianAggregator_PanickingSourceIsExcluded(t *testing.T) {
	fetch := funcFetcher(func(_ context.Context, s config.SourceConfig) (float64, error) {
		if s.Name == "broken" {
			panic("nil map write")
		}
		return 4, nil
	})

	var got AggregatedPrice
	var err error
	require.NotPanics(t, func() {
		got, err = NewMedianAggregator(fetch, nil).Aggregate(context.Background(), asset("broken", "ok"))
	})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.Price)
	assert.Equal(t, 1, got.Sources)

	failed := got.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].Source)
	assert.ErrorIs(t, failed[0].Err, ErrFetchPanic)
}

func TestMedianAggregator_AllSourcesPanic(t *testing.T) {
	fetch := funcFetcher(func(context.Context, config.SourceConfig) (float64, error) {
		panic("boom")
	})

	_, err := NewMedianAggregator(fetch, nil).Aggregate(context.Background(), asset("a", "b"))
	require.ErrorIs(t, err, ErrNoValidReadings)
}

func TestMedianAggregator_NoSources(t *testing.T) {
	_, err := NewMedianAggregator(funcFetcher(nil), nil).Aggregate(context.Background(), asset())
	require.ErrorIs(t, err, ErrNoSources)
}

func TestMedianAggregator_LatencyBoundedBySlowestSource(t *testing.T) {
	const deadline = 150 * time.Millisecond

	fetch := funcFetcher(func(ctx context.Context, s config.SourceConfig) (float64, error) {
		if s.Name == "fast" {
			return 10, nil
		}
		ctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()
		<-ctx.Done()
		return 0, errors.New("deadline")
	})

	start := time.Now()
	got, err := NewMedianAggregator(fetch, nil).Aggregate(context.Background(), asset("slow1", "slow2", "slow3", "fast"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Price)
	assert.Less(t, elapsed, 2*deadline, "sources must be fetched concurrently")
}

func TestNewAggregator(t *testing.T) {
	agg, err := NewAggregator(ModeMedian, funcFetcher(nil), nil)
	require.NoError(t, err)
	assert.IsType(t, &MedianAggregator{}, agg)

	_, err = NewAggregator("tvwap", funcFetcher(nil), nil)
	require.ErrorIs(t, err, ErrUnknownMode)
}

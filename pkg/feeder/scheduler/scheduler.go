package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/feeder/oracle"
	"github.com/justmert/near-oracle/pkg/feeder/price"
	"github.com/justmert/near-oracle/pkg/metrics"
	"github.com/justmert/near-oracle/pkg/server/aggregator"
)

const (
	// DefaultInterval is the wait between the end of one cycle and the start of the next.
	DefaultInterval = 60 * time.Second
	// DefaultAssetDelay is the pause between two assets of the same cycle.
	DefaultAssetDelay = time.Second
)

// verifyWarnDeviation is the on-chain deviation above which Verify warns.
var verifyWarnDeviation = decimal.NewFromFloat(0.01)

// Config contains scheduler configuration
type Config struct {
	Assets            []config.AssetConfig
	Interval          time.Duration
	AssetDelay        time.Duration
	EnforceMinSources bool
}

// Scheduler runs update cycles over all configured assets
type Scheduler struct {
	cfg        Config
	aggregator aggregator.Aggregator
	reporter   oracle.Reporter
	verifier   oracle.PriceReader
	publisher  Publisher
	logger     zerolog.Logger

	mu        sync.RWMutex
	state     State
	lastCycle *CycleResult
}

// New creates a new scheduler instance
func New(cfg Config, agg aggregator.Aggregator, reporter oracle.Reporter, logger zerolog.Logger) (*Scheduler, error) {
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("%w", ErrNoAssets)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AssetDelay < 0 {
		cfg.AssetDelay = 0
	}

	return &Scheduler{
		cfg:        cfg,
		aggregator: agg,
		reporter:   reporter,
		logger:     logger,
		state:      StateIdle,
	}, nil
}

// SetPublisher registers a receiver for successful publications.
func (s *Scheduler) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetVerifier enables reading each reported price back from the contract.
func (s *Scheduler) SetVerifier(r oracle.PriceReader) {
	s.verifier = r
}

// Run executes cycles until ctx is cancelled. The wait between cycles starts
// when a cycle completes. Cancelling ctx interrupts the wait immediately but
// lets the asset being processed finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Int("assets", len(s.cfg.Assets)).
		Dur("interval", s.cfg.Interval).
		Dur("asset_delay", s.cfg.AssetDelay).
		Bool("enforce_min_sources", s.cfg.EnforceMinSources).
		Msg("Starting update scheduler")

	defer s.setState(StateStopped)

	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("Update scheduler stopped")
			return nil
		}

		s.RunCycle(ctx)

		s.setState(StateWaiting)
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Update scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle processes every asset once, strictly in configuration order. A
// failing asset never stops the cycle. A cycle that has started always runs to
// completion on a context detached from ctx; cancelling ctx only drops the
// remaining inter-asset pauses. A cycle requested after cancellation is skipped.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Assets:  make([]AssetResult, 0, len(s.cfg.Assets)),
	}
	logger := s.logger.With().Str("cycle_id", result.ID).Logger()
	work := context.WithoutCancel(ctx)

	s.setState(StateRunningCycle)
	logger.Info().Int("assets", len(s.cfg.Assets)).Msg("Starting update cycle")

	draining := false
	for i, asset := range s.cfg.Assets {
		if i == 0 && ctx.Err() != nil {
			result.Skipped = len(s.cfg.Assets)
			logger.Info().Msg("Shutdown requested before cycle start, skipping cycle")
			break
		}
		if i > 0 && !draining && !s.pause(ctx) {
			draining = true
			logger.Info().
				Int("remaining", len(s.cfg.Assets)-i).
				Msg("Shutdown requested, finishing cycle without pauses")
		}

		res := s.processAsset(work, logger, result.ID, asset)
		if !res.OK() {
			metrics.RecordAssetError(asset.ID, res.Stage)
			logger.Error().
				Err(res.Err).
				Str("asset", asset.ID).
				Str("stage", res.Stage).
				Msg("Asset update failed")
		}
		result.Assets = append(result.Assets, res)
	}

	result.Finished = time.Now()
	metrics.RecordCycle(result.Duration())

	s.mu.Lock()
	s.lastCycle = &result
	s.mu.Unlock()

	logger.Info().
		Int("published", result.Published()).
		Int("attempted", len(result.Assets)).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration()).
		Msg("Update cycle completed")

	return result
}

// pause waits AssetDelay and reports false if ctx was cancelled first.
func (s *Scheduler) pause(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if s.cfg.AssetDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.cfg.AssetDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) processAsset(ctx context.Context, logger zerolog.Logger, cycleID string, asset config.AssetConfig) (res AssetResult) {
	res.AssetID = asset.ID
	defer func() {
		if r := recover(); r != nil {
			res.Stage = StagePanic
			res.Err = fmt.Errorf("%w: %v", ErrAssetPanic, r)
			res.Encoded = nil
		}
	}()

	s.setState(StateFetching)
	agg, err := s.aggregator.Aggregate(ctx, asset)
	res.Sources = agg.Sources
	for _, r := range agg.Failed() {
		logger.Debug().
			Err(r.Err).
			Str("asset", asset.ID).
			Str("source", r.Source).
			Msg("Source excluded from median")
	}
	if err != nil {
		res.Stage, res.Err = StageAggregate, err
		metrics.RecordReport(asset.ID, "skipped")
		return res
	}

	s.setState(StateAggregating)
	if s.cfg.EnforceMinSources && asset.MinSources > 0 && agg.Sources < asset.MinSources {
		res.Stage = StageQuorum
		res.Err = fmt.Errorf("%w: %d of %d required", ErrBelowMinSources, agg.Sources, asset.MinSources)
		metrics.RecordReport(asset.ID, "skipped")
		return res
	}

	enc, err := price.Encode(asset.ID, agg.Price, asset.Decimals)
	if err != nil {
		res.Stage, res.Err = StageEncode, err
		metrics.RecordReport(asset.ID, "skipped")
		return res
	}

	logger.Info().
		Str("asset", asset.ID).
		Float64("price", agg.Price).
		Str("encoded", enc.String()).
		Int("sources", agg.Sources).
		Int("configured", len(asset.Sources)).
		Msg("Aggregated price")

	s.setState(StateReporting)
	if err := s.reporter.ReportPrice(ctx, enc); err != nil {
		res.Stage, res.Err = StageReport, err
		metrics.RecordReport(asset.ID, "failure")
		return res
	}
	metrics.RecordReport(asset.ID, "success")
	res.Encoded = &enc

	if s.verifier != nil {
		s.verify(ctx, logger, enc)
	}

	if s.publisher != nil {
		s.publisher.Publish(Publication{
			CycleID:    cycleID,
			AssetID:    asset.ID,
			Symbol:     asset.Symbol,
			Price:      agg.Price,
			Encoded:    enc,
			Sources:    agg.Sources,
			Configured: len(asset.Sources),
			Timestamp:  agg.Timestamp,
		})
	}
	return res
}

func (s *Scheduler) verify(ctx context.Context, logger zerolog.Logger, enc price.Encoded) {
	data, err := oracle.Verify(ctx, s.verifier, enc)
	switch {
	case err == nil:
		logger.Debug().Str("asset", enc.AssetID).Msg("On-chain price matches report")
	case errors.Is(err, oracle.ErrPriceMismatch):
		dev := oracle.Deviation(enc, data)
		event := logger.Debug()
		if dev.GreaterThanOrEqual(verifyWarnDeviation) {
			event = logger.Warn()
		}
		event.
			Str("asset", enc.AssetID).
			Str("reported", enc.String()).
			Str("on_chain", data.Price.Multiplier.Shift(-int32(data.Price.Decimals)).String()).
			Str("deviation_pct", dev.Mul(decimal.NewFromInt(100)).StringFixed(3)).
			Uint8("num_sources", data.NumSources).
			Msg("On-chain price differs from report")
	default:
		logger.Warn().Err(err).Str("asset", enc.AssetID).Msg("Failed to verify reported price")
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current scheduler state
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastCycle returns the most recent completed cycle, or nil before the first one.
func (s *Scheduler) LastCycle() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return nil
	}
	c := *s.lastCycle
	return &c
}

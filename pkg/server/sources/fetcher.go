package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/metrics"
	"github.com/justmert/near-oracle/pkg/version"
)

const (
	// DefaultFetchTimeout bounds one fetch including connect, response and body.
	DefaultFetchTimeout = 5 * time.Second
	// DefaultFailureWarnThreshold is the consecutive failure count that triggers a warning.
	DefaultFailureWarnThreshold = 3

	maxBodyBytes = 1 << 20
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout              time.Duration
	FailureWarnThreshold int
	Client               *http.Client  // optional, defaults to a plain client
	Tally                *FailureTally // optional, a private tally is created when nil
}

// Fetcher retrieves prices from HTTP JSON sources.
type Fetcher struct {
	client        *http.Client
	timeout       time.Duration
	warnThreshold int
	tally         *FailureTally
	logger        *logging.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewFetcher creates a new Fetcher.
func NewFetcher(cfg FetcherConfig, logger *logging.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.FailureWarnThreshold <= 0 {
		cfg.FailureWarnThreshold = DefaultFailureWarnThreshold
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Tally == nil {
		cfg.Tally = NewFailureTally()
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &Fetcher{
		client:        cfg.Client,
		timeout:       cfg.Timeout,
		warnThreshold: cfg.FailureWarnThreshold,
		tally:         cfg.Tally,
		logger:        logger,
		limiters:      make(map[string]*rate.Limiter),
	}
}

// Tally returns the failure tally updated by this fetcher.
func (f *Fetcher) Tally() *FailureTally {
	return f.tally
}

// Fetch performs one GET against the source and extracts its price.
func (f *Fetcher) Fetch(ctx context.Context, source config.SourceConfig) (float64, error) {
	start := time.Now()
	price, err := f.fetch(ctx, source)
	elapsed := time.Since(start)

	if err != nil {
		reason := Reason(err)
		count := f.tally.Fail(source.Name)
		metrics.RecordSourceFetch(source.Name, reason, elapsed)

		f.logger.Debug("Source fetch failed",
			"source", source.Name,
			"reason", reason,
			"error", err,
			"duration", elapsed)
		if count >= f.warnThreshold {
			f.logger.Warn("Source failing repeatedly",
				"source", source.Name,
				"consecutive_failures", count,
				"reason", reason,
				"error", err)
		}
		return 0, err
	}

	f.tally.Reset(source.Name)
	metrics.RecordSourceFetch(source.Name, "", elapsed)
	return price, nil
}

func (f *Fetcher) fetch(ctx context.Context, source config.SourceConfig) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if limiter := f.limiter(source); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return 0, f.wrapContextErr(ctx, err)
			}
			return 0, fmt.Errorf("%w: rate limit wait: %v", ErrTimeout, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", version.AgentString())
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, f.wrapContextErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var doc interface{}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		if ctx.Err() != nil {
			return 0, f.wrapContextErr(ctx, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	price, err := Extract(doc, source.Path)
	if err != nil {
		return 0, err
	}
	if !IsValidPrice(price) {
		return 0, fmt.Errorf("%w: got %v", ErrNonPositive, price)
	}
	return price, nil
}

// wrapContextErr maps a failed request to ErrTimeout when the deadline fired
// and to ErrTransport otherwise.
func (f *Fetcher) wrapContextErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, f.timeout, context.DeadlineExceeded)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// limiter returns the shared limiter for a source name, or nil when the
// source has no rate limit.
func (f *Fetcher) limiter(source config.SourceConfig) *rate.Limiter {
	every := source.RateLimit.ToDuration()
	if every <= 0 {
		return nil
	}

	f.limitersMu.Lock()
	defer f.limitersMu.Unlock()

	l, ok := f.limiters[source.Name]
	if !ok {
		l = rate.NewLimiter(rate.Every(every), 1)
		f.limiters[source.Name] = l
	}
	return l
}

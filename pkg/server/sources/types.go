package sources

import (
	"context"
	"math"
	"time"

	"github.com/justmert/near-oracle/pkg/config"
)

// PriceFetcher retrieves one price quote from one configured source.
type PriceFetcher interface {
	// Fetch returns a finite, strictly positive price or an error describing
	// why the source produced none.
	Fetch(ctx context.Context, source config.SourceConfig) (float64, error)
}

// Reading is the outcome of one fetch attempt. It is never persisted.
type Reading struct {
	Source  string
	Price   float64
	Err     error
	Latency time.Duration
}

// Valid reports whether the reading may take part in aggregation.
func (r Reading) Valid() bool {
	return r.Err == nil && IsValidPrice(r.Price)
}

// IsValidPrice reports whether p is finite and strictly positive.
func IsValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

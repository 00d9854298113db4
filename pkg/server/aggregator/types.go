package aggregator

import (
	"time"

	"github.com/justmert/near-oracle/pkg/server/sources"
)

// AggregatedPrice is the consensus price for one asset in one cycle.
type AggregatedPrice struct {
	AssetID   string
	Symbol    string
	Price     float64
	Sources   int // sources that contributed to Price
	Timestamp time.Time

	// Readings holds every attempt, including failures, in configuration order.
	Readings []sources.Reading
}

// Failed returns the readings that did not contribute.
func (p AggregatedPrice) Failed() []sources.Reading {
	var out []sources.Reading
	for _, r := range p.Readings {
		if !r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

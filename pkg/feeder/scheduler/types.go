package scheduler

import (
	"time"

	"github.com/justmert/near-oracle/pkg/feeder/price"
)

// State represents the current state of the update loop
type State string

const (
	StateIdle         State = "idle"
	StateRunningCycle State = "running_cycle"
	StateFetching     State = "fetching"
	StateAggregating  State = "aggregating"
	StateReporting    State = "reporting"
	StateWaiting      State = "waiting"
	StateStopped      State = "stopped"
)

// Asset processing stages, used in results and metrics.
const (
	StageAggregate = "aggregate"
	StageQuorum    = "quorum"
	StageEncode    = "encode"
	StageReport    = "report"
	StagePanic     = "panic"
)

// Publication is a price that was successfully reported.
type Publication struct {
	CycleID    string        `json:"cycle_id"`
	AssetID    string        `json:"asset_id"`
	Symbol     string        `json:"symbol"`
	Price      float64       `json:"price"`
	Encoded    price.Encoded `json:"encoded"`
	Sources    int           `json:"sources"`
	Configured int           `json:"configured_sources"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Publisher receives every successful publication.
type Publisher interface {
	Publish(p Publication)
}

// AssetResult is the outcome of one asset within a cycle.
type AssetResult struct {
	AssetID string
	Stage   string // failing stage, empty on success
	Err     error
	Sources int
	Encoded *price.Encoded
}

// OK reports whether the asset was published.
func (r AssetResult) OK() bool {
	return r.Err == nil
}

// CycleResult summarizes one pass over all assets.
type CycleResult struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Assets   []AssetResult
	Skipped  int // assets not attempted because shutdown preceded the cycle
}

// Published returns the number of assets that were reported.
func (c CycleResult) Published() int {
	n := 0
	for _, a := range c.Assets {
		if a.OK() {
			n++
		}
	}
	return n
}

// Duration returns how long the cycle ran.
func (c CycleResult) Duration() time.Duration {
	return c.Finished.Sub(c.Started)
}

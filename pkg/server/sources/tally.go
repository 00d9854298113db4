package sources

import (
	"sync"

	"github.com/justmert/near-oracle/pkg/metrics"
)

// FailureTally counts consecutive failed fetches per source name. It is shared
// across assets, so a name used by several assets accumulates one count.
type FailureTally struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewFailureTally creates an empty tally.
func NewFailureTally() *FailureTally {
	return &FailureTally{counts: make(map[string]int)}
}

// Fail increments the count for name and returns the new value.
func (t *FailureTally) Fail(name string) int {
	t.mu.Lock()
	t.counts[name]++
	n := t.counts[name]
	t.mu.Unlock()

	metrics.RecordConsecutiveFailures(name, n)
	return n
}

// Reset sets the count for name back to zero.
func (t *FailureTally) Reset(name string) {
	t.mu.Lock()
	t.counts[name] = 0
	t.mu.Unlock()

	metrics.RecordConsecutiveFailures(name, 0)
}

// Count returns the current count for name.
func (t *FailureTally) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}

// Snapshot returns a copy of all counts.
func (t *FailureTally) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

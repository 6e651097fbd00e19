// Package counter provides a bounded-cardinality frequency counter used to
// summarize heterogeneous error labels without unbounded memory growth.
package counter

// DefaultCap bounds the number of distinct labels a Capped counter tracks.
const DefaultCap = 10000

// Capped counts label occurrences up to a fixed number of distinct labels.
// Overflow policy: once the cap is reached, increments for labels not
// already tracked are dropped entirely; already-tracked labels keep
// counting. Not safe for concurrent use.
type Capped struct {
	max    int
	counts map[string]int
}

// NewCapped creates a counter tracking at most max distinct labels.
// Non-positive max falls back to DefaultCap.
func NewCapped(max int) *Capped {
	if max < 1 {
		max = DefaultCap
	}
	return &Capped{
		max:    max,
		counts: make(map[string]int),
	}
}

// Increment adds one occurrence of label. It reports whether the label is
// tracked; false means the counter was at capacity and the occurrence was
// dropped.
func (c *Capped) Increment(label string) bool {
	if _, ok := c.counts[label]; ok {
		c.counts[label]++
		return true
	}
	if len(c.counts) >= c.max {
		return false
	}
	c.counts[label] = 1
	return true
}

// Snapshot returns a copy of the label counts.
func (c *Capped) Snapshot() map[string]int {
	out := make(map[string]int, len(c.counts))
	for label, n := range c.counts {
		out[label] = n
	}
	return out
}

// Len returns the number of distinct labels tracked.
func (c *Capped) Len() int {
	return len(c.counts)
}

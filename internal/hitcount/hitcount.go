// Package hitcount holds the pair of sample counters attached to every
// aggregate entity.
package hitcount

// Counts is the atomic unit of measurement. Self counts samples for which the
// entity was the innermost contributor, Total counts samples for which it was
// anywhere on the sampled path.
type Counts struct {
	Total uint64 `json:"total"`
	Self  uint64 `json:"self"`
}

// Add merges other into c component-wise.
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Self += other.Self
}

// Hit records a sample of weight w on the path. When leaf is true the sample
// also counts as a self hit.
func (c *Counts) Hit(w uint64, leaf bool) {
	c.Total += w
	if leaf {
		c.Self += w
	}
}

// IsZero reports whether no sample was ever recorded.
func (c Counts) IsZero() bool {
	return c.Total == 0 && c.Self == 0
}

// Percent returns value as a percentage of total, 0 when total is 0.
func Percent(value, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total) * 100.0
}

// SourceCounts keeps one Counts per sample source id.
type SourceCounts []Counts

// Get returns the counts for a source, the zero value if none were recorded.
func (s SourceCounts) Get(sourceID int) Counts {
	if sourceID < 0 || sourceID >= len(s) {
		return Counts{}
	}
	return s[sourceID]
}

// At returns a pointer to the counts of a source, growing the slice as needed.
func (s *SourceCounts) At(sourceID int) *Counts {
	if sourceID >= len(*s) {
		grown := make(SourceCounts, sourceID+1)
		copy(grown, *s)
		*s = grown
	}
	return &(*s)[sourceID]
}

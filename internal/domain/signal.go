package domain

import "time"

// Metadata carries the numeric context a detector attaches to a signal.
type Metadata map[string]float64

// Get returns the value stored under key, or 0.
func (m Metadata) Get(key string) float64 {
	if m == nil {
		return 0
	}
	return m[key]
}

// Clone returns an independent copy of the map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Signal is a scored hypothesis that a trade should be considered at Timestamp.
// Signals are values: copies never share mutable state except through Metadata,
// which producers always allocate fresh.
type Signal struct {
	Timestamp  time.Time
	Source     SignalSource
	Direction  Direction
	Strength   float64 // [0,1]
	Confidence float64 // [0,1]
	Quality    float64 // set by the combiner and the risk filter
	Metadata   Metadata
}

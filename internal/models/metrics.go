package models

import "go.uber.org/atomic"

// Metrics holds the counters shared by the sync layer components.
type Metrics struct {
	Hits        atomic.Int64
	Misses      atomic.Int64
	Evictions   atomic.Int64
	Expirations atomic.Int64
	StoreErrors atomic.Int64

	Enqueued  atomic.Int64
	Replayed  atomic.Int64
	Abandoned atomic.Int64

	Verifications atomic.Int64
	Rejections    atomic.Int64

	Actions        atomic.Int64
	ActionFailures atomic.Int64
}

// NewMetrics creates a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

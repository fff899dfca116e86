// Package metrics exports the sync layer counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"goflare.io/punchclock/internal/models"
)

const namespace = "punchclock"

// Register exposes every counter of m on reg.
func Register(reg prometheus.Registerer, m *models.Metrics) error {
	for _, c := range Collectors(m) {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors builds one CounterFunc per counter of m.
func Collectors(m *models.Metrics) []prometheus.Collector {
	counter := func(subsystem, name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(v.Load())
		})
	}

	return []prometheus.Collector{
		counter("cache", "hits_total", "Cache reads served from a valid entry.", &m.Hits),
		counter("cache", "misses_total", "Cache reads that found no valid entry.", &m.Misses),
		counter("cache", "evictions_total", "Entries removed to honour the size bound.", &m.Evictions),
		counter("cache", "expirations_total", "Entries removed after their TTL passed.", &m.Expirations),
		counter("cache", "store_errors_total", "Durable store failures absorbed by the cache.", &m.StoreErrors),
		counter("queue", "enqueued_total", "Mutations queued while offline.", &m.Enqueued),
		counter("queue", "replayed_total", "Queued mutations delivered on replay.", &m.Replayed),
		counter("queue", "abandoned_total", "Queued mutations dropped after the last attempt.", &m.Abandoned),
		counter("identity", "verifications_total", "Background session verifications.", &m.Verifications),
		counter("identity", "rejections_total", "Sessions rejected by the server.", &m.Rejections),
		counter("attendance", "actions_total", "Check-in and check-out requests accepted by the server.", &m.Actions),
		counter("attendance", "action_failures_total", "Check-in and check-out requests that failed.", &m.ActionFailures),
	}
}

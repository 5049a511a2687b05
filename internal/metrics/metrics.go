// Copyright 2025 Traceprompt
//
// Metrics registry wiring the gauges, counters, and histograms the
// pipeline emits (outbox bytes, ring length, flush latency/outcome,
// encryption latency, backpressure trips) so an embedding application can
// mount the returned *prometheus.Registry behind its own /metrics
// endpoint. Wiring that endpoint itself stays the embedder's job.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the pipeline emits.
type Registry struct {
	reg *prometheus.Registry

	RingLength        prometheus.Gauge
	QueueDepth        prometheus.Gauge
	OutboxBytes       prometheus.Gauge
	FlushFailures     prometheus.Counter
	FlushSuccesses    prometheus.Counter
	EncryptionLatency prometheus.Histogram
	FlushLatency      prometheus.Histogram
	BackpressureTrips prometheus.Counter

	queueDepthMu    sync.Mutex
	ringComponent   int
	outboxComponent int
}

// New creates a fresh registry with all pipeline metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		RingLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "audit",
			Name:      "ring_length",
			Help:      "Current number of records held in the in-memory ring buffer.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "audit",
			Name:      "queue_depth",
			Help:      "Estimated number of records pending delivery (ring + outbox).",
		}),
		OutboxBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "audit",
			Name:      "outbox_bytes",
			Help:      "Current size in bytes of the outbox file.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "flush_failures_total",
			Help:      "Number of batch flush attempts that did not complete successfully.",
		}),
		FlushSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "flush_successes_total",
			Help:      "Number of batch flush attempts that completed successfully.",
		}),
		EncryptionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "audit",
			Name:      "encryption_latency_seconds",
			Help:      "Time spent envelope-encrypting a single record.",
			Buckets:   prometheus.DefBuckets,
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "audit",
			Name:      "flush_latency_seconds",
			Help:      "Time spent completing a single batch flush, including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		BackpressureTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "backpressure_trips_total",
			Help:      "Number of outbox appends that left the file above 80% of its size limit.",
		}),
	}

	reg.MustRegister(
		r.RingLength, r.QueueDepth, r.OutboxBytes,
		r.FlushFailures, r.FlushSuccesses,
		r.EncryptionLatency, r.FlushLatency, r.BackpressureTrips,
	)
	return r
}

// SetRingLength records the ring buffer's current length, updating both
// RingLength and the ring component of QueueDepth.
func (r *Registry) SetRingLength(n int) {
	r.RingLength.Set(float64(n))
	r.queueDepthMu.Lock()
	r.ringComponent = n
	r.QueueDepth.Set(float64(r.ringComponent + r.outboxComponent))
	r.queueDepthMu.Unlock()
}

// SetOutboxPending records the outbox's current pending record count,
// updating the outbox component of QueueDepth. RingLength + outbox pending
// is the estimated number of records awaiting delivery.
func (r *Registry) SetOutboxPending(n int) {
	r.queueDepthMu.Lock()
	r.outboxComponent = n
	r.QueueDepth.Set(float64(r.ringComponent + r.outboxComponent))
	r.queueDepthMu.Unlock()
}

// Registry exposes the underlying *prometheus.Registry for the embedder to
// mount behind its own HTTP handler (e.g. promhttp.HandlerFor).
func (r *Registry) Registry() *prometheus.Registry {
	return r.reg
}

// Package metrics exposes Prometheus instrumentation for the delivery pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the delivery pipeline instruments. A single instance is
// created at startup and injected into the components that record to it.
type Metrics struct {
	Deliveries *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	Dropped    prometheus.Counter
	QueueDepth *prometheus.GaugeVec
}

// New registers the pipeline metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Terminal delivery outcomes by channel and status.",
		}, []string{"channel", "status"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_retries_total",
			Help: "Delivery attempts re-enqueued with backoff.",
		}, []string{"channel"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "notify_events_dropped_total",
			Help: "Inbound events dropped as malformed or unroutable.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notify_queue_depth",
			Help: "Jobs waiting in each channel queue.",
		}, []string{"channel"}),
	}
}

// Package metrics exposes Prometheus instrumentation for a processing run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one run. Methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	RecordsProcessed prometheus.Counter
	RecordsRejected  *prometheus.CounterVec
	AlertsEmitted    *prometheus.CounterVec
	AlertDeliveries  *prometheus.CounterVec
	TrackedPairs     prometheus.Gauge
	ProcessingTime   prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
}

// New registers every collector on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "spotwatcher"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_processed_total",
			Help:      "Total number of validated records fed to the tracker",
		}),
		RecordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_rejected_total",
			Help:      "Total number of records skipped by validation, by offending field",
		}, []string{"field"}),
		AlertsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "alerts_emitted_total",
			Help:      "Total number of spot change alerts by currency pair",
		}, []string{"pair"}),
		AlertDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "deliveries_total",
			Help:      "Secondary alert deliveries by channel and status",
		}, []string{"channel", "status"}),
		TrackedPairs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "tracked_pairs",
			Help:      "Number of currency pairs with a moving average",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "record_processing_seconds",
			Help:      "Time spent deciding and admitting one record",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp",
			Help:      "Unix timestamp of the last completed run",
		}),
	}
}

// RecordProcessed counts a tracked record and its processing latency.
func (m *Metrics) RecordProcessed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RecordsProcessed.Inc()
	m.ProcessingTime.Observe(elapsed.Seconds())
}

// RecordRejected counts a record skipped by validation.
func (m *Metrics) RecordRejected(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "record"
	}
	m.RecordsRejected.WithLabelValues(field).Inc()
}

// RecordAlert counts an emitted alert.
func (m *Metrics) RecordAlert(pair string) {
	if m == nil {
		return
	}
	m.AlertsEmitted.WithLabelValues(pair).Inc()
}

// RecordDelivery counts a best-effort delivery attempt.
func (m *Metrics) RecordDelivery(channel string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AlertDeliveries.WithLabelValues(channel, status).Inc()
}

// SetTrackedPairs updates the pair gauge.
func (m *Metrics) SetTrackedPairs(n int) {
	if m == nil {
		return
	}
	m.TrackedPairs.Set(float64(n))
}

// MarkRunComplete stamps the end of a run.
func (m *Metrics) MarkRunComplete(at time.Time) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

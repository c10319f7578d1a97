// Package metrics exposes storage activity as Prometheus metrics.
//
// Counters:
//   - schedstore_read_units_total, schedstore_write_units_total
//   - schedstore_write_aborts_total{kind}
//   - schedstore_log_entries_appended_total, schedstore_log_bytes_appended_total
//   - schedstore_snapshots_total
//
// Histograms:
//   - schedstore_log_append_seconds, schedstore_commit_seconds
//
// Gauges:
//   - schedstore_recovery_seconds, schedstore_recovery_replayed_entries
//   - schedstore_log_retained_entries
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schedstore"

// Collector records storage metrics.
type Collector struct {
	readUnits     prometheus.Counter
	writeUnits    prometheus.Counter
	writeAborts   *prometheus.CounterVec
	appended      prometheus.Counter
	appendedBytes prometheus.Counter
	snapshots     prometheus.Counter

	appendLatency prometheus.Histogram
	commitLatency prometheus.Histogram

	recoveryTime     prometheus.Gauge
	recoveryReplayed prometheus.Gauge
	logRetained      prometheus.Gauge
}

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		readUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_units_total",
			Help:      "Read work units executed.",
		}),
		writeUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_units_total",
			Help:      "Write work units committed.",
		}),
		writeAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_aborts_total",
			Help:      "Write work units rolled back, by failure kind.",
		}, []string{"kind"}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_appended_total",
			Help:      "Entries appended to the log.",
		}),
		appendedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_bytes_appended_total",
			Help:      "Bytes appended to the log.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots written.",
		}),
		appendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "log_append_seconds",
			Help:      "Latency of durable log appends.",
			Buckets:   prometheus.DefBuckets,
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_seconds",
			Help:      "Latency of write work units from begin to commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_seconds",
			Help:      "Duration of the last recovery.",
		}),
		recoveryReplayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recovery_replayed_entries",
			Help:      "Log entries replayed by the last recovery.",
		}),
		logRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_retained_entries",
			Help:      "Entries retained in the log after the last snapshot.",
		}),
	}

	reg.MustRegister(
		c.readUnits,
		c.writeUnits,
		c.writeAborts,
		c.appended,
		c.appendedBytes,
		c.snapshots,
		c.appendLatency,
		c.commitLatency,
		c.recoveryTime,
		c.recoveryReplayed,
		c.logRetained,
	)
	return c
}

// RecordRead counts a read work unit.
func (c *Collector) RecordRead() {
	if c == nil {
		return
	}
	c.readUnits.Inc()
}

// RecordCommit counts a committed write work unit and its latency.
func (c *Collector) RecordCommit(d time.Duration) {
	if c == nil {
		return
	}
	c.writeUnits.Inc()
	c.commitLatency.Observe(d.Seconds())
}

// RecordAbort counts a rolled back write work unit.
func (c *Collector) RecordAbort(kind string) {
	if c == nil {
		return
	}
	c.writeAborts.WithLabelValues(kind).Inc()
}

// RecordAppend counts a durable log append of size bytes.
func (c *Collector) RecordAppend(size int, d time.Duration) {
	if c == nil {
		return
	}
	c.appended.Inc()
	c.appendedBytes.Add(float64(size))
	c.appendLatency.Observe(d.Seconds())
}

// RecordSnapshot counts a snapshot and the log size left after truncation.
func (c *Collector) RecordSnapshot(retained int) {
	if c == nil {
		return
	}
	c.snapshots.Inc()
	c.logRetained.Set(float64(retained))
}

// SetRecovery records the outcome of the last recovery.
func (c *Collector) SetRecovery(d time.Duration, replayed int) {
	if c == nil {
		return
	}
	c.recoveryTime.Set(d.Seconds())
	c.recoveryReplayed.Set(float64(replayed))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Package metrics exposes index pipeline counters in the Prometheus format.
// Runs are short-lived, so the CLI writes them to a file for the node
// exporter textfile collector instead of serving them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contentindex"

// Item outcomes.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	items            *prometheus.CounterVec
	itemDuration     *prometheus.HistogramVec
	validations      *prometheus.CounterVec
	documentsWritten *prometheus.CounterVec
	documentsDeleted *prometheus.CounterVec
	purged           *prometheus.CounterVec
	rebuildDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "items_total",
			Help:      "Background items by kind and result.",
		}, []string{"kind", "result"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "item_duration_seconds",
			Help:      "Time spent building and writing one item.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "results_total",
			Help:      "Value set validation outcomes per index.",
		}, []string{"index", "status"}),
		documentsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_written_total",
			Help:      "Documents written per index.",
		}, []string{"index"}),
		documentsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_deleted_total",
			Help:      "Document ids deleted per index.",
		}, []string{"index"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "type_purged_documents_total",
			Help:      "Documents removed because their content type was deleted.",
		}, []string{"index"}),
		rebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of manual rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"index", "result"}),
	}

	m.registry.MustRegister(
		m.items,
		m.itemDuration,
		m.validations,
		m.documentsWritten,
		m.documentsDeleted,
		m.purged,
		m.rebuildDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveItem records a finished background item.
func (m *Metrics) ObserveItem(kind string, err error, seconds float64) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.items.WithLabelValues(kind, result).Inc()
	m.itemDuration.WithLabelValues(kind).Observe(seconds)
}

// ItemDropped records an item the queue had no room for.
func (m *Metrics) ItemDropped(kind string) {
	m.items.WithLabelValues(kind, ResultDropped).Inc()
}

// Validated records one validation outcome.
func (m *Metrics) Validated(index, status string) {
	m.validations.WithLabelValues(index, status).Inc()
}

// Written records documents written to index.
func (m *Metrics) Written(index string, n int) {
	m.documentsWritten.WithLabelValues(index).Add(float64(n))
}

// Deleted records ids deleted from index.
func (m *Metrics) Deleted(index string, n int) {
	m.documentsDeleted.WithLabelValues(index).Add(float64(n))
}

// Purged records documents removed by a content type purge.
func (m *Metrics) Purged(index string, n int) {
	m.purged.WithLabelValues(index).Add(float64(n))
}

// ObserveRebuild records a finished rebuild.
func (m *Metrics) ObserveRebuild(index string, err error, seconds float64) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.rebuildDuration.WithLabelValues(index, result).Observe(seconds)
}

// WriteFile writes the current values in the text exposition format. The
// file is replaced atomically.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

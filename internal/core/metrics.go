package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives operational observations from the service layer.
type MetricsRecorder interface {
	KPIComputed(scope string, elapsed time.Duration)
	InsightAnswered(mode string, failed bool)
	ImportCompleted(entityType string, succeeded, failed int)
	ExportGenerated()
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) KPIComputed(string, time.Duration) {}

func (NoopMetrics) InsightAnswered(string, bool) {}

func (NoopMetrics) ImportCompleted(string, int, int) {}

func (NoopMetrics) ExportGenerated() {}

var _ MetricsRecorder = NoopMetrics{}

// PrometheusMetrics records service observations as Prometheus series.
type PrometheusMetrics struct {
	kpiDuration *prometheus.HistogramVec
	insights    *prometheus.CounterVec
	importRows  *prometheus.CounterVec
	exports     prometheus.Counter
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics builds and registers the metric set on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		kpiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "comptrack",
			Name:      "kpi_compute_seconds",
			Help:      "Time spent aggregating completion KPIs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scope"}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comptrack",
			Name:      "insight_queries_total",
			Help:      "Insight queries answered, by responder mode and outcome.",
		}, []string{"mode", "outcome"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comptrack",
			Name:      "import_rows_total",
			Help:      "Bulk import rows processed, by entity type and outcome.",
		}, []string{"entity", "outcome"}),
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "comptrack",
			Name:      "exports_total",
			Help:      "Project export bundles generated.",
		}),
	}
	reg.MustRegister(m.kpiDuration, m.insights, m.importRows, m.exports)
	return m
}

func (m *PrometheusMetrics) KPIComputed(scope string, elapsed time.Duration) {
	m.kpiDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) InsightAnswered(mode string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.insights.WithLabelValues(mode, outcome).Inc()
}

func (m *PrometheusMetrics) ImportCompleted(entityType string, succeeded, failed int) {
	m.importRows.WithLabelValues(entityType, "success").Add(float64(succeeded))
	m.importRows.WithLabelValues(entityType, "failed").Add(float64(failed))
}

func (m *PrometheusMetrics) ExportGenerated() {
	m.exports.Inc()
}

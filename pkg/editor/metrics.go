// pkg/editor/metrics.go
package editor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "parqedit"

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// PagesTotal counts page loads. Labels: status
	PagesTotal *prometheus.CounterVec
	// PageDurationSeconds measures page load latency
	PageDurationSeconds prometheus.Histogram
	// CommitsTotal counts commits. Labels: status (success, or an error category)
	CommitsTotal *prometheus.CounterVec
	// CommitDurationSeconds measures commit latency including verification
	CommitDurationSeconds prometheus.Histogram
	// RowsWrittenTotal counts rows written to outputs
	RowsWrittenTotal prometheus.Counter
	// EditsTotal counts committed edits. Labels: kind (cell, row, column)
	EditsTotal *prometheus.CounterVec
	// DroppedEditsTotal counts edits left out of rewrites. Labels: reason
	DroppedEditsTotal *prometheus.CounterVec
	// ActiveSessions tracks open edit sessions
	ActiveSessions prometheus.Gauge
	// InflightCommits tracks commits currently executing
	InflightCommits prometheus.Gauge
}

// NewMetrics registers the service collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pages_total",
			Help:      "Page loads by status.",
		}, []string{"status"}),
		PageDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "page_duration_seconds",
			Help:      "Page load latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "Commits by status.",
		}, []string{"status"}),
		CommitDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "commit_duration_seconds",
			Help:      "Commit latency including verification.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		RowsWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_written_total",
			Help:      "Rows written to output files.",
		}),
		EditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "edits_total",
			Help:      "Committed edits by kind.",
		}, []string{"kind"}),
		DroppedEditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_edits_total",
			Help:      "Cell edits left out of rewrites by reason.",
		}, []string{"reason"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Open edit sessions.",
		}),
		InflightCommits: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "inflight_commits",
			Help:      "Commits currently executing.",
		}),
	}
}

func (m *Metrics) recordPage(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(statusLabel(err)).Inc()
	m.PageDurationSeconds.Observe(duration.Seconds())
}

func (m *Metrics) recordCommit(result *CommitResult, err error) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(statusLabel(err)).Inc()
	if result == nil {
		return
	}
	m.CommitDurationSeconds.Observe(result.Duration.Seconds())
	if err != nil {
		return
	}
	if result.RowsWritten > 0 {
		m.RowsWrittenTotal.Add(float64(result.RowsWritten))
	}
	m.EditsTotal.WithLabelValues("cell").Add(float64(result.AppliedEdits))
	m.EditsTotal.WithLabelValues("row").Add(float64(result.RemovedRows))
	m.EditsTotal.WithLabelValues("column").Add(float64(result.RemovedColumns))
	for _, dropped := range result.Dropped {
		m.DroppedEditsTotal.WithLabelValues(dropped.Reason).Inc()
	}
}

func (m *Metrics) commitStarted() {
	if m != nil {
		m.InflightCommits.Inc()
	}
}

func (m *Metrics) commitFinished() {
	if m != nil {
		m.InflightCommits.Dec()
	}
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.ActiveSessions.Set(float64(n))
	}
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	return CategoryOf(err).String()
}

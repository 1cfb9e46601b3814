// Package metrics exposes Prometheus collectors for the crawler phases.
//
// Nothing is served over the network; the default registry is written to a
// node-exporter textfile at the end of each command.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttemptsTotal      *prometheus.CounterVec
	fetchFailuresTotal      prometheus.Counter
	throttleWaitSeconds     prometheus.Histogram
	snapshotsTotal          *prometheus.CounterVec
	entitiesTotal           *prometheus.CounterVec
	recordsWrittenTotal     *prometheus.CounterVec
	countCorrectionsTotal   prometheus.Counter
	activeWorkers           prometheus.Gauge
	extractDiagnosticsTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_attempts_total",
				Help: "Total number of HTTP attempts made through the throttle, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_failures_total",
				Help: "Total number of URLs abandoned after exhausting the retry bound.",
			},
		)

		throttleWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_throttle_wait_seconds",
				Help:    "Histogram of time spent waiting for a pacing slot.",
				Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
			},
		)

		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_snapshots_total",
				Help: "Total number of snapshot pages, labeled by action (saved or skipped).",
			},
			[]string{"action"},
		)

		entitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_entities_total",
				Help: "Total number of entities processed, labeled by phase and outcome.",
			},
			[]string{"phase", "outcome"},
		)

		recordsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_written_total",
				Help: "Total number of rating records written, labeled by stream.",
			},
			[]string{"stream"},
		)

		countCorrectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_count_corrections_total",
				Help: "Total number of declared counts overwritten by actual counts.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing an entity.",
			},
		)

		extractDiagnosticsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_extract_diagnostics_total",
				Help: "Total number of items dropped or degraded during extraction, labeled by pattern set.",
			},
			[]string{"set"},
		)
	})
}

// ObserveFetchAttempt counts one throttled HTTP attempt.
func ObserveFetchAttempt(outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchFailure counts a URL given up on.
func ObserveFetchFailure() {
	Init()
	fetchFailuresTotal.Inc()
}

// ObserveThrottleWait records a pacing wait.
func ObserveThrottleWait(d time.Duration) {
	Init()
	throttleWaitSeconds.Observe(d.Seconds())
}

// ObserveSnapshot counts a page that was saved or found already present.
func ObserveSnapshot(action string) {
	Init()
	snapshotsTotal.WithLabelValues(action).Inc()
}

// ObserveEntity counts an entity handled in a phase.
func ObserveEntity(phase, outcome string) {
	Init()
	entitiesTotal.WithLabelValues(phase, outcome).Inc()
}

// ObserveRecord counts a record appended to a stream.
func ObserveRecord(stream string) {
	Init()
	recordsWrittenTotal.WithLabelValues(stream).Inc()
}

// ObserveCountCorrection counts a reconciliation that changed stored counts.
func ObserveCountCorrection() {
	Init()
	countCorrectionsTotal.Inc()
}

// ObserveExtractDiagnostics adds n dropped or degraded items for a pattern set.
func ObserveExtractDiagnostics(set string, n int) {
	Init()
	if n > 0 {
		extractDiagnosticsTotal.WithLabelValues(set).Add(float64(n))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// WriteTextfile dumps the default registry in the text exposition format.
func WriteTextfile(path string) error {
	Init()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

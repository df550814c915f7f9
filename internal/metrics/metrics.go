// Package metrics provides Prometheus metrics for history extraction and task
// collection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/patrickspencer/taskhist/internal/tasks"
)

var (
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhist_extractions_total",
			Help: "Total number of history extractions by outcome",
		},
		[]string{"outcome"},
	)
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskhist_extraction_duration_seconds",
			Help:    "History extraction duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	RecordsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskhist_records_extracted_total",
			Help: "Total number of history records decoded",
		},
	)
	RecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskhist_records_skipped_total",
			Help: "Total number of malformed records skipped",
		},
	)
	RecordsArchived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taskhist_records_archived_total",
			Help: "Total number of history records newly written to the archive",
		},
	)
	EventsByLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskhist_history_events",
			Help: "Events in the latest extracted history by level",
		},
		[]string{"level"},
	)
	TasksByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskhist_tasks",
			Help: "Registered tasks in the latest snapshot by state",
		},
		[]string{"state"},
	)
	MissedRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskhist_missed_runs",
			Help: "Missed runs summed over the latest snapshot",
		},
	)
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhist_snapshots_total",
			Help: "Total number of task snapshot collections by outcome",
		},
		[]string{"outcome"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhist_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskhist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeAccess    = "access_error"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// RecordExtraction counts one extraction and its duration.
func RecordExtraction(outcome string, duration time.Duration, records, skipped int) {
	ExtractionsTotal.WithLabelValues(outcome).Inc()
	ExtractionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	RecordsExtracted.Add(float64(records))
	RecordsSkipped.Add(float64(skipped))
}

// RecordArchived counts newly archived history rows.
func RecordArchived(n int) {
	RecordsArchived.Add(float64(n))
}

// UpdateEventLevels replaces the per-level gauges with counts.
func UpdateEventLevels(counts map[string]int) {
	EventsByLevel.Reset()
	for level, n := range counts {
		EventsByLevel.WithLabelValues(level).Set(float64(n))
	}
}

// UpdateTaskStats publishes a snapshot summary.
func UpdateTaskStats(stats tasks.SummaryStats) {
	TasksByState.Reset()
	for state, n := range stats.CountByState {
		TasksByState.WithLabelValues(state.String()).Set(float64(n))
	}
	TasksByState.WithLabelValues("UNRECOGNIZED").Set(float64(stats.Unrecognized))
	MissedRuns.Set(float64(stats.MissedRunsTotal))
}

// RecordSnapshot counts one snapshot collection.
func RecordSnapshot(outcome string) {
	SnapshotsTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

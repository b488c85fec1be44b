package prometheus

import (
	"time"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

// SieveMetrics holds the metrics of a filtering run.
type SieveMetrics struct {
	// Filters
	RecordsTotal             CounterVec
	FilterEvaluationDuration HistogramVec

	// Search service
	SearchQueriesTotal  CounterVec
	SearchQueryDuration HistogramVec
	SearchResultSize    HistogramVec
	CacheLookupsTotal   CounterVec

	// Runner
	ActiveWorkers GaugeVec
	RunDuration   HistogramVec
	ErrorsTotal   CounterVec
}

// Default Buckets
var (
	DefaultEvaluationBuckets = []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05}
	DefaultQueryBuckets      = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultResultSizeBuckets = []float64{0, 1, 10, 100, 1000, 10000, 100000}
	DefaultRunBuckets        = []float64{1, 5, 10, 30, 60, 300, 900, 3600}
)

// Record outcomes.
const (
	OutcomeRetained = "retained"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// NewSieveMetrics registers the metrics with collector.
func NewSieveMetrics(collector MetricsCollector) *SieveMetrics {
	m := &SieveMetrics{}

	m.RecordsTotal = collector.RegisterCounter("records_total", "Records evaluated by filter and outcome", "filter", "outcome")
	m.FilterEvaluationDuration = collector.RegisterHistogram("filter_evaluation_duration_seconds", "Per-record filter evaluation time", DefaultEvaluationBuckets, "filter")

	m.SearchQueriesTotal = collector.RegisterCounter("search_queries_total", "Search service queries by status", "service", "status")
	m.SearchQueryDuration = collector.RegisterHistogram("search_query_duration_seconds", "Search service query latency", DefaultQueryBuckets, "service")
	m.SearchResultSize = collector.RegisterHistogram("search_result_identifiers", "Identifiers returned per query", DefaultResultSizeBuckets, "result_type")
	m.CacheLookupsTotal = collector.RegisterCounter("cache_lookups_total", "Query cache lookups by result", "cache", "result")

	m.ActiveWorkers = collector.RegisterGauge("active_workers", "Workers currently evaluating records")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Wall time of a filtering run", DefaultRunBuckets)
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// Helpers

func RecordEvaluation(metrics *SieveMetrics, filter string, keep bool, err error, duration time.Duration) {
	outcome := OutcomeRejected
	switch {
	case err != nil:
		outcome = OutcomeError
		RecordError(metrics, "filter", err)
	case keep:
		outcome = OutcomeRetained
	}
	metrics.RecordsTotal.WithLabelValues(filter, outcome).Inc()
	metrics.FilterEvaluationDuration.WithLabelValues(filter).Observe(duration.Seconds())
}

func RecordSearch(metrics *SieveMetrics, service, resultType string, identifiers int, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
		RecordError(metrics, "search", err)
	}
	metrics.SearchQueriesTotal.WithLabelValues(service, status).Inc()
	metrics.SearchQueryDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err == nil {
		metrics.SearchResultSize.WithLabelValues(resultType).Observe(float64(identifiers))
	}
}

func RecordCacheLookup(metrics *SieveMetrics, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordError counts err under its error code.
func RecordError(metrics *SieveMetrics, component string, err error) {
	metrics.ErrorsTotal.WithLabelValues(component, string(errors.GetCode(err))).Inc()
}

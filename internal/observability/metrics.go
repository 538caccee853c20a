package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the harvester, grouped by
// pipeline stage: runs, discovery, record fetches, and exports.
type Metrics struct {
	// RunsStarted counts harvest runs that passed parameter validation.
	RunsStarted prometheus.Counter

	// RunsCompleted counts runs that produced exports.
	RunsCompleted prometheus.Counter

	// RunsFailed counts runs that ended with an error.
	RunsFailed prometheus.Counter

	// RunsAborted counts runs declined at the confirmation step.
	RunsAborted prometheus.Counter

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// Searches counts esearch discovery calls.
	Searches prometheus.Counter

	// SearchesFailed counts discovery calls that failed or matched nothing.
	SearchesFailed prometheus.Counter

	// SearchDuration observes discovery latency in seconds.
	SearchDuration prometheus.Histogram

	// IDsDiscovered counts record identifiers returned by discovery.
	IDsDiscovered prometheus.Counter

	// RecordsFetched counts records fetched and normalized.
	RecordsFetched prometheus.Counter

	// RecordsFailed counts record fetch failures, labeled by reason.
	RecordsFailed *prometheus.CounterVec

	// FetchDuration observes single-record fetch latency in seconds.
	FetchDuration prometheus.Histogram

	// FetchesInFlight tracks concurrently running record fetches.
	FetchesInFlight prometheus.Gauge

	// Exports counts encoded payloads, labeled by format.
	Exports *prometheus.CounterVec

	// ExportBytes counts encoded payload bytes, labeled by format.
	ExportBytes *prometheus.CounterVec

	// HTTPResponses counts E-utilities responses, labeled by status class
	// (2xx, 4xx, 5xx) or "error" for transport failures.
	HTTPResponses *prometheus.CounterVec

	// HTTPRetries counts retried E-utilities requests.
	HTTPRetries prometheus.Counter
}

// NewMetrics creates a Metrics instance registered with the default registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Runs
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of harvest runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of harvest runs completed successfully",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of harvest runs that failed",
		}),
		RunsAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_aborted_total",
			Help:      "Total number of harvest runs aborted after discovery",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of harvest runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Discovery
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of discovery searches",
		}),
		SearchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of discovery searches that failed or matched nothing",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of discovery searches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		IDsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ids_discovered_total",
			Help:      "Total number of record identifiers discovered",
		}),

		// Records
		RecordsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total number of records fetched and normalized",
		}),
		RecordsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Total number of record fetch failures by reason",
		}, []string{"reason"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of single record fetches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FetchesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetches_in_flight",
			Help:      "Number of record fetches currently running",
		}),

		// Exports
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total number of export payloads encoded by format",
		}, []string{"format"}),
		ExportBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_bytes_total",
			Help:      "Total bytes of export payloads encoded by format",
		}, []string{"format"}),

		// Transport
		HTTPResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "Total number of E-utilities responses by status class",
		}, []string{"class"}),
		HTTPRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Total number of retried E-utilities requests",
		}),
	}
}

// RecordRunStarted records that a run has started.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records that a run has completed.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunFailed records that a run has failed.
func (m *Metrics) RecordRunFailed(durationSeconds float64) {
	m.RunsFailed.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunAborted records that a run was declined after discovery.
func (m *Metrics) RecordRunAborted() {
	m.RunsAborted.Inc()
}

// RecordSearchCompleted records a successful discovery call.
func (m *Metrics) RecordSearchCompleted(idCount int, durationSeconds float64) {
	m.Searches.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.IDsDiscovered.Add(float64(idCount))
}

// RecordSearchFailed records a failed discovery call.
func (m *Metrics) RecordSearchFailed(durationSeconds float64) {
	m.Searches.Inc()
	m.SearchesFailed.Inc()
	m.SearchDuration.Observe(durationSeconds)
}

// FetchStarted marks a record fetch as in flight.
func (m *Metrics) FetchStarted() {
	m.FetchesInFlight.Inc()
}

// RecordRecordFetched records a successful record fetch.
func (m *Metrics) RecordRecordFetched(durationSeconds float64) {
	m.FetchesInFlight.Dec()
	m.RecordsFetched.Inc()
	m.FetchDuration.Observe(durationSeconds)
}

// RecordRecordFailed records a failed record fetch.
func (m *Metrics) RecordRecordFailed(reason string, durationSeconds float64) {
	m.FetchesInFlight.Dec()
	m.RecordsFailed.WithLabelValues(reason).Inc()
	m.FetchDuration.Observe(durationSeconds)
}

// RecordExport records an encoded payload.
func (m *Metrics) RecordExport(format string, size int) {
	m.Exports.WithLabelValues(format).Inc()
	m.ExportBytes.WithLabelValues(format).Add(float64(size))
}

// RecordHTTPResponse records one transport outcome. A zero status means the
// request failed before a response arrived.
func (m *Metrics) RecordHTTPResponse(status int) {
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.HTTPResponses.WithLabelValues(class).Inc()
}

// RecordHTTPRetry records a retried request.
func (m *Metrics) RecordHTTPRetry() {
	m.HTTPRetries.Inc()
}

// Package observability provides logging and metrics support for the
// PubMed harvester.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithRunContext(logger, runID, query)
//	logger.Info().Int("ids", len(ids)).Msg("discovery complete")
//
// # Metrics
//
//	metrics := observability.NewMetrics("pubmed_harvester")
//	metrics.RecordRunStarted()
//	metrics.RecordRecordFetched(0.42)
//
// NewMetrics registers with the default Prometheus registry, so a namespace
// may only be used once per process. NewMetricsWithRegistry accepts any
// prometheus.Registerer.
//
// # Standard Fields
//
//   - run_id: harvest run identifier
//   - query: discovery query
//   - pmid: PubMed record identifier
//   - component: emitting component (runner, scheduler, transport, http-server)
//   - request_id: HTTP request correlation identifier
//
// All components are safe for concurrent use from multiple goroutines.
package observability

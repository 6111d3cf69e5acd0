package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tool metrics
	toolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemaker_mcp_tool_invocations_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	toolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemaker_mcp_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"tool"},
	)

	rowsReturnedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemaker_mcp_rows_returned_total",
			Help: "Total number of rows returned to callers",
		},
		[]string{"database"},
	)

	rowCapHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemaker_mcp_row_cap_hits_total",
			Help: "Number of results truncated at the row cap",
		},
		[]string{"database"},
	)

	// Connection metrics
	connectionResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filemaker_mcp_connection_resets_total",
			Help: "Number of sessions reset after a connection-lost error",
		},
		[]string{"database"},
	)

	statementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filemaker_mcp_statement_duration_seconds",
			Help:    "Driver statement duration in seconds, including fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"database", "kind"},
	)
)

// RecordToolInvocation records a dispatched tool call. status is "ok" or an
// error category.
func RecordToolInvocation(tool, status string, duration time.Duration) {
	toolInvocationsTotal.WithLabelValues(tool, status).Inc()
	toolInvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordRows records rows handed back for database and whether the cap cut them off.
func RecordRows(database string, n int, capped bool) {
	rowsReturnedTotal.WithLabelValues(database).Add(float64(n))
	if capped {
		rowCapHitsTotal.WithLabelValues(database).Inc()
	}
}

func RecordConnectionReset(database string) {
	connectionResetsTotal.WithLabelValues(database).Inc()
}

func RecordStatement(database, kind string, duration time.Duration) {
	statementDuration.WithLabelValues(database, kind).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics provides Prometheus metrics for flystream operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flystream_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Operator call metrics
	BackendOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_backend_ops_total",
			Help: "Total number of operator calls",
		},
		[]string{"scheme", "operation", "status"},
	)

	BackendOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flystream_backend_op_duration_seconds",
			Help:    "Operator call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme", "operation"},
	)

	// Stream wrapper metrics
	StreamOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_stream_operations_total",
			Help: "Total number of stream wrapper operations",
		},
		[]string{"operation", "scheme", "status"}, // status: "success", "failure"
	)

	StreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_stream_errors_total",
			Help: "Total number of reported stream errors by kind",
		},
		[]string{"operation", "kind"},
	)

	OpenStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flystream_open_streams",
			Help: "Number of currently open streams",
		},
	)

	BufferSpillsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flystream_buffer_spills_total",
			Help: "Total number of stream buffers moved from memory to a temporary file",
		},
	)

	// Lock manager metrics
	LockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_lock_operations_total",
			Help: "Total number of lock operations",
		},
		[]string{"store", "operation", "status"}, // operation: "acquire", "release"; status: "success", "busy", "failure"
	)

	LockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flystream_lock_operation_duration_seconds",
			Help:    "Lock operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// Active locks gauge
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flystream_active_locks",
			Help: "Number of currently held locks",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flystream_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)
)


// Package metrics defines custom Prometheus metrics for SDRVault.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for response and staged-object size
// histograms (bytes). Recordings are typically a few hundred KiB to tens of MiB.
var sizeBuckets = []float64{1024, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864, 268435456}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdrvault_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdrvault_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdrvault_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdrvault_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Object store metrics.
var (
	// StoreOperationsTotal counts gateway calls by operation and status.
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdrvault_store_operations_total",
			Help: "Object store operations by type",
		},
		[]string{"operation", "status"},
	)

	// StoreOperationDuration observes gateway call latency in seconds.
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdrvault_store_operation_duration_seconds",
			Help:    "Object store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Staging and retrieval metrics.
var (
	// WorkspacesPreparedTotal counts Prepare calls by status.
	WorkspacesPreparedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdrvault_workspaces_prepared_total",
			Help: "Workspaces prepared by status",
		},
		[]string{"status"},
	)

	// WorkspacesClearedTotal counts workspace directories removed by Clear,
	// ClearAll and Cleanup.
	WorkspacesClearedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdrvault_workspaces_cleared_total",
			Help: "Workspace directories removed",
		},
	)

	// ObjectsStagedTotal counts objects downloaded into workspaces.
	ObjectsStagedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdrvault_objects_staged_total",
			Help: "Objects downloaded into workspaces",
		},
	)

	// BytesStagedTotal counts bytes downloaded into workspaces.
	BytesStagedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sdrvault_bytes_staged_total",
			Help: "Bytes downloaded into workspaces",
		},
	)

	// TranscodesTotal counts decoder runs by decoder and status.
	TranscodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdrvault_transcodes_total",
			Help: "Decoder runs by decoder and status",
		},
		[]string{"decoder", "status"},
	)

	// TranscodeDuration observes decoder run time in seconds.
	TranscodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdrvault_transcode_duration_seconds",
			Help:    "Decoder run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"decoder"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPResponseSize,
			BytesSentTotal,
			StoreOperationsTotal,
			StoreOperationDuration,
			WorkspacesPreparedTotal,
			WorkspacesClearedTotal,
			ObjectsStagedTotal,
			BytesStagedTotal,
			TranscodesTotal,
			TranscodeDuration,
		)
		// Initialize the labelled counters so they appear in /metrics output
		// before the first request.
		StoreOperationsTotal.WithLabelValues("ListKeys", "success")
		WorkspacesPreparedTotal.WithLabelValues("success")
	})
}

// routePatterns maps the first path segment of each API route to its label
// templates, indexed by the number of segments after the first.
var routePatterns = map[string][]string{
	"filelist":     {"/filelist", "/filelist/{date}", "/filelist/{date}/{freq}"},
	"freqlist":     {"/freqlist", "/freqlist/{date}"},
	"preparefiles": {"/preparefiles", "/preparefiles/{start}", "/preparefiles/{start}/{duration}", "/preparefiles/{start}/{duration}/{freq}"},
	"getaudiofile": {"/getaudiofile", "/getaudiofile/{uuid}", "/getaudiofile/{uuid}/{filename}"},
	"clear":        {"/clear", "/clear/{uuid}"},
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. Dates, frequencies, workspace
// ids and filenames never become label values.
func NormalizePath(path string) string {
	// Known fixed paths.
	switch path {
	case "/health", "/healthz", "/readyz":
		return path
	case "/docs", "/docs/":
		return "/docs"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/", "":
		return "/"
	}

	// Starts with /docs (Stoplight Elements assets).
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "/"
	}
	segments := strings.Split(trimmed, "/")
	patterns, ok := routePatterns[segments[0]]
	if !ok {
		return "/other"
	}
	n := len(segments) - 1
	if n >= len(patterns) {
		return "/other"
	}
	return patterns[n]
}

// Package metrics provides Prometheus metrics instrumentation for the station.
// Metric labels carry coarse categories only, never user or request IDs.
package metrics

import (
	"net/http"
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	registryMu   sync.Mutex
)

// GetRegistry returns the station metrics registry.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// ResetRegistry resets the registry for testing purposes.
// This should only be used in tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registryOnce = sync.Once{}
}

// StationMetrics contains the metrics exposed by the station service.
type StationMetrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge

	// Request lifecycle metrics
	RequestsCreated    *prometheus.CounterVec
	RequestTransitions *prometheus.CounterVec
	ApprovalsTotal     *prometheus.CounterVec
	EvaluationsTotal   *prometheus.CounterVec

	// Authorization metrics
	AuthzDecisions *prometheus.CounterVec

	// Background job metrics
	JobRuns     *prometheus.CounterVec
	JobSwept    *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Service info
	ServiceInfo *prometheus.GaugeVec
}

// NewStationMetrics creates and registers the station metrics.
func NewStationMetrics(version string) *StationMetrics {
	reg := GetRegistry()

	m := &StationMetrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "station",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "station",
				Name:      "http_active_requests",
				Help:      "Number of active HTTP requests",
			},
		),

		RequestsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "requests_created_total",
				Help:      "Total custody requests created, by operation type",
			},
			[]string{"operation"},
		),

		RequestTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "request_transitions_total",
				Help:      "Total request status transitions",
			},
			[]string{"from", "to"},
		),

		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "approvals_total",
				Help:      "Total approval decisions recorded",
			},
			[]string{"decision"},
		),

		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "evaluations_total",
				Help:      "Total policy evaluations, by outcome",
			},
			[]string{"outcome"},
		),

		AuthzDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "authz_decisions_total",
				Help:      "Total authorization decisions, by resource kind and result",
			},
			[]string{"resource", "result"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "job_runs_total",
				Help:      "Total background job runs",
			},
			[]string{"job", "result"},
		),

		JobSwept: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "station",
				Name:      "job_swept_total",
				Help:      "Total requests processed by background job sweeps",
			},
			[]string{"job"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "station",
				Name:      "job_duration_seconds",
				Help:      "Background job sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "station",
				Name:      "info",
				Help:      "Service information",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
		m.RequestsCreated,
		m.RequestTransitions,
		m.ApprovalsTotal,
		m.EvaluationsTotal,
		m.AuthzDecisions,
		m.JobRuns,
		m.JobSwept,
		m.JobDuration,
		m.ServiceInfo,
	)

	m.ServiceInfo.WithLabelValues(version, runtime.Version()).Set(1)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SanitizePath converts a path with IDs to a template so metric cardinality
// stays bounded. Example: /api/v1/requests/abc123 -> /api/v1/requests/{id}
func SanitizePath(path string) string {
	resources := map[string]bool{
		"requests":    true,
		"policies":    true,
		"named-rules": true,
		"users":       true,
		"groups":      true,
		"permissions": true,
		"audit":       true,
	}

	segments := strings.Split(path, "/")
	for i := 0; i < len(segments)-1; i++ {
		if resources[segments[i]] && isIDSegment(segments[i+1]) {
			// Trailing verbs (approvals, cancel, approvers) stay literal.
			segments[i+1] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// isIDSegment reports whether a segment looks like an opaque identifier
// rather than a route verb: hex digits and dashes only, length over 8.
func isIDSegment(s string) bool {
	if len(s) <= 8 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

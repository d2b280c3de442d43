// Package metrics exposes Prometheus collectors for the runtime host.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the runtime-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	actionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uiruntime",
			Subsystem: "dispatcher",
			Name:      "actions_total",
			Help:      "Total number of externally dispatched actions by type.",
		},
		[]string{"type"},
	)

	validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uiruntime",
			Subsystem: "schema",
			Name:      "validations_total",
			Help:      "Total number of application definition validations by result.",
		},
		[]string{"result"},
	)

	openInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uiruntime",
			Subsystem: "instances",
			Name:      "open",
			Help:      "Current number of open application instances.",
		},
	)

	grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uiruntime",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total number of gRPC requests by method and code.",
		},
		[]string{"method", "code"},
	)

	lockouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uiruntime",
			Subsystem: "limiter",
			Name:      "lockouts_total",
			Help:      "Total number of login lockouts by limiter backend.",
		},
		[]string{"backend"},
	)
)

func init() {
	Registry.MustRegister(
		actionsDispatched,
		validations,
		openInstances,
		grpcRequests,
		lockouts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordAction counts a dispatched action.
func RecordAction(actionType string) {
	if actionType == "" {
		actionType = "unknown"
	}
	actionsDispatched.WithLabelValues(actionType).Inc()
}

// RecordValidation counts a validation outcome.
func RecordValidation(ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	validations.WithLabelValues(result).Inc()
}

// InstanceOpened increments the open instance gauge.
func InstanceOpened() { openInstances.Inc() }

// InstanceClosed decrements the open instance gauge.
func InstanceClosed() { openInstances.Dec() }

// RecordRequest counts a finished gRPC call.
func RecordRequest(method, code string) {
	grpcRequests.WithLabelValues(method, code).Inc()
}

// RecordLockout counts a login key entering a block.
func RecordLockout(backend string) { lockouts.WithLabelValues(backend).Inc() }

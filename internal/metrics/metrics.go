// Package metrics exposes Prometheus collectors for the social
// service: HTTP traffic, request-ledger activity, group join outcomes,
// and notification RPC failures.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "social",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "social",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	requestsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "requests",
		Name:      "created_total",
		Help:      "Total pending-request ledger rows created, by type.",
	}, []string{"type"})

	requestsAcquired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "requests",
		Name:      "acquired_total",
		Help:      "Total pending-request ledger rows acquired (consumed), by type and outcome.",
	}, []string{"type", "outcome"})

	requestsSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "requests",
		Name:      "expired_swept_total",
		Help:      "Total expired request-ledger rows removed by the periodic sweep.",
	}, []string{})

	groupJoins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "groups",
		Name:      "join_attempts_total",
		Help:      "Total group join attempts, by outcome (ok|full|conflict|error).",
	}, []string{"outcome"})

	notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "social",
		Subsystem: "rpc",
		Name:      "notification_failures_total",
		Help:      "Total best-effort message-service notifications that failed to send.",
	}, []string{"event"})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		requestsCreated,
		requestsAcquired,
		requestsSwept,
		groupJoins,
		notificationFailures,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request count/duration/inflight collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRequestCreated counts a ledger row created for a request type.
func RecordRequestCreated(requestType string) {
	requestsCreated.WithLabelValues(requestType).Inc()
}

// RecordRequestAcquired counts a ledger acquire attempt and its outcome.
func RecordRequestAcquired(requestType, outcome string) {
	requestsAcquired.WithLabelValues(requestType, outcome).Inc()
}

// RecordRequestsSwept adds n expired rows removed by the periodic sweep.
func RecordRequestsSwept(n int) {
	if n <= 0 {
		return
	}
	requestsSwept.WithLabelValues().Add(float64(n))
}

// RecordGroupJoin counts a join attempt outcome (ok|full|conflict|error).
func RecordGroupJoin(outcome string) {
	groupJoins.WithLabelValues(outcome).Inc()
}

// RecordNotificationFailure counts a best-effort notification that failed.
func RecordNotificationFailure(event string) {
	notificationFailures.WithLabelValues(event).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses numeric path segments so /group/123 and
// /group/456 share one label instead of exploding cardinality.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 64); err == nil {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

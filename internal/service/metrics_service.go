package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth event outcomes recorded on auth_events_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	sessionsSwept   prometheus.Counter
	auditDropped    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Authentication events by kind and outcome",
	}, []string{"event", "outcome"})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_rate_limited_total",
		Help: "Requests rejected by the credential rate limiter",
	}, []string{"route"})

	sessionsSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_sessions_swept_total",
		Help: "Expired refresh sessions removed by the sweeper",
	})

	auditDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_dropped_total",
		Help: "Audit events dropped because the queue was full",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration, authEvents, rateLimited, sessionsSwept, auditDropped, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		dbQueryDuration: dbQueryDuration,
		authEvents:      authEvents,
		rateLimited:     rateLimited,
		sessionsSwept:   sessionsSwept,
		auditDropped:    auditDropped,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordAuthEvent counts a register, login, rotate or logout attempt.
func (m *MetricsService) RecordAuthEvent(event string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordRateLimited counts a request refused by the limiter.
func (m *MetricsService) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// RecordSessionsSwept adds n to the sweeper counter.
func (m *MetricsService) RecordSessionsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

// RecordAuditDropped counts an audit event lost to back pressure.
func (m *MetricsService) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

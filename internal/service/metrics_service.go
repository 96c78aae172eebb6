package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lesson-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// cache usage and lesson lifecycle events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	classTransitions *prometheus.CounterVec
	reschedules      *prometheus.CounterVec
	creditEvents     *prometheus.CounterVec
	classesGenerated *prometheus.CounterVec
	contractEvents   *prometheus.CounterVec
	notifications    *prometheus.CounterVec
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache reads",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	classTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_status_transitions_total",
		Help: "Class status transitions by origin and target status",
	}, []string{"from", "to"})

	reschedules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_reschedules_total",
		Help: "Confirmed reschedules by kind",
	}, []string{"kind"})

	creditEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_ledger_events_total",
		Help: "Credit ledger writes by action and type",
	}, []string{"action", "type"})

	classesGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "classes_generated_total",
		Help: "Template occurrences processed by outcome",
	}, []string{"outcome"})

	contractEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contract_events_total",
		Help: "Contract lifecycle events",
	}, []string{"event"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification dispatch outcomes",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		classTransitions, reschedules, creditEvents, classesGenerated, contractEvents, notifications,
		goroutines,
	)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheLookups:     cacheLookups,
		classTransitions: classTransitions,
		reschedules:      reschedules,
		creditEvents:     creditEvents,
		classesGenerated: classesGenerated,
		contractEvents:   contractEvents,
		notifications:    notifications,
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
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

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordClassTransition counts a committed status change.
func (m *MetricsService) RecordClassTransition(from, to models.ClassStatus) {
	if m == nil {
		return
	}
	m.classTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordReschedule counts a confirmed reschedule.
func (m *MetricsService) RecordReschedule(makeup bool) {
	if m == nil {
		return
	}
	kind := "quota"
	if makeup {
		kind = "makeup"
	}
	m.reschedules.WithLabelValues(kind).Inc()
}

// RecordCreditEvent counts a ledger write.
func (m *MetricsService) RecordCreditEvent(action models.CreditAction, creditType models.CreditType) {
	if m == nil {
		return
	}
	m.creditEvents.WithLabelValues(string(action), string(creditType)).Inc()
}

// RecordGeneration counts template expansion outcomes.
func (m *MetricsService) RecordGeneration(result models.GenerationResult) {
	if m == nil {
		return
	}
	m.classesGenerated.WithLabelValues("created").Add(float64(result.Created))
	m.classesGenerated.WithLabelValues("skipped").Add(float64(result.Skipped))
}

// RecordContractEvent counts a contract lifecycle event.
func (m *MetricsService) RecordContractEvent(event string) {
	if m == nil {
		return
	}
	m.contractEvents.WithLabelValues(event).Inc()
}

// RecordNotification counts a notification outcome such as queued, sent, dropped.
func (m *MetricsService) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

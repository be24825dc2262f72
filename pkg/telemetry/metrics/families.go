package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tollgate-hq/tollgate/pkg/config"
)

// HTTPMetrics tracks the HTTP facade.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics with the provided registry.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	hm := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"method", "route"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests being served",
			},
		),
	}

	registry.MustRegister(hm.requestsTotal, hm.requestDuration, hm.inFlight)
	return hm
}

// RecordRequest records one completed request.
func (hm *HTTPMetrics) RecordRequest(method, route, status string, duration time.Duration) {
	hm.requestsTotal.WithLabelValues(method, route, status).Inc()
	hm.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// QuotaMetrics tracks the quota meter.
type QuotaMetrics struct {
	admissions        *prometheus.CounterVec
	admissionDuration prometheus.Histogram
	usageFailures     prometheus.Counter
}

// NewQuotaMetrics creates and registers quota metrics with the provided registry.
func NewQuotaMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *QuotaMetrics {
	qm := &QuotaMetrics{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "quota",
				Name:      "admissions_total",
				Help:      "Total number of quota decisions by result (allowed, denied)",
			},
			[]string{"result"},
		),
		admissionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "quota",
				Name:      "admission_duration_seconds",
				Help:      "Duration of check-and-consume calls in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
		usageFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "quota",
				Name:      "usage_failures_total",
				Help:      "Total number of admitted consumptions whose usage could not be recorded",
			},
		),
	}

	registry.MustRegister(qm.admissions, qm.admissionDuration, qm.usageFailures)
	return qm
}

// RecordAdmission records one quota decision.
func (qm *QuotaMetrics) RecordAdmission(allowed bool, d time.Duration) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	qm.admissions.WithLabelValues(result).Inc()
	qm.admissionDuration.Observe(d.Seconds())
}

// UsageMetrics tracks the usage event recorder.
type UsageMetrics struct {
	written       *prometheus.CounterVec
	writeDuration prometheus.Histogram
	dropped       prometheus.Counter
}

// NewUsageMetrics creates and registers usage log metrics with the provided
// registry.
func NewUsageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UsageMetrics {
	um := &UsageMetrics{
		written: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "usage",
				Name:      "events_written_total",
				Help:      "Total number of usage event appends by result (success, error)",
			},
			[]string{"result"},
		),
		writeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "usage",
				Name:      "event_write_duration_seconds",
				Help:      "Duration of usage event appends in seconds, retries included",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "usage",
				Name:      "events_dropped_total",
				Help:      "Total number of usage events dropped on a full buffer",
			},
		),
	}

	registry.MustRegister(um.written, um.writeDuration, um.dropped)
	return um
}

// RecordWrite records one append attempt sequence.
func (um *UsageMetrics) RecordWrite(d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	um.written.WithLabelValues(result).Inc()
	um.writeDuration.Observe(d.Seconds())
}

// BreakerMetrics tracks circuit breakers.
type BreakerMetrics struct {
	state *prometheus.GaugeVec
}

// NewBreakerMetrics creates and registers breaker metrics with the provided
// registry.
func NewBreakerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BreakerMetrics {
	bm := &BreakerMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(bm.state)
	return bm
}

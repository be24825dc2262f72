package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tollgate-hq/tollgate/pkg/config"
)

// DefaultNamespace is used when the configuration leaves it empty.
const DefaultNamespace = "tollgate"

// OtherLabel replaces label values beyond the cardinality limit.
const OtherLabel = "other"

// Collector is the main orchestrator for all Prometheus metrics in Tollgate.
// It manages metric registration and implements the observer interfaces of
// the quota meter, the usage recorder and the metrics aggregator.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	httpMetrics    *HTTPMetrics
	quotaMetrics   *QuotaMetrics
	usageMetrics   *UsageMetrics
	breakerMetrics *BreakerMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry carrying the Go runtime and process collectors is used.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = prometheus.DefBuckets
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.httpMetrics = NewHTTPMetrics(cfg, registry)
	c.quotaMetrics = NewQuotaMetrics(cfg, registry)
	c.usageMetrics = NewUsageMetrics(cfg, registry)
	c.breakerMetrics = NewBreakerMetrics(cfg, registry)

	return c
}

// RecordHTTPRequest records a completed HTTP request. route is the matched
// ServeMux pattern.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	if !c.cardinalityLimiter.Allow(method + " " + route) {
		route = OtherLabel
	}
	c.httpMetrics.RecordRequest(method, route, strconv.Itoa(status), duration)
}

// HTTPInFlight adjusts the in-flight request gauge by delta.
func (c *Collector) HTTPInFlight(delta int) {
	if !c.config.Enabled {
		return
	}
	c.httpMetrics.inFlight.Add(float64(delta))
}

// ObserveAdmission records a quota decision.
func (c *Collector) ObserveAdmission(allowed bool, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.quotaMetrics.RecordAdmission(allowed, d)
}

// ObserveUsageFailure records a usage event or last-used update that could
// not be persisted.
func (c *Collector) ObserveUsageFailure() {
	if !c.config.Enabled {
		return
	}
	c.quotaMetrics.usageFailures.Inc()
}

// ObserveEventWrite records one usage event append.
func (c *Collector) ObserveEventWrite(d time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.usageMetrics.RecordWrite(d, err)
}

// ObserveEventDrop records a usage event dropped on a full buffer.
func (c *Collector) ObserveEventDrop() {
	if !c.config.Enabled {
		return
	}
	c.usageMetrics.dropped.Inc()
}

// ObserveBreakerState records a circuit breaker transition.
func (c *Collector) ObserveBreakerState(name string, state int) {
	if !c.config.Enabled {
		return
	}
	c.breakerMetrics.state.WithLabelValues(name).Set(float64(state))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

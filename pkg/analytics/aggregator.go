package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tollgate-hq/tollgate/pkg/usage"
)

// BreakerName identifies the event store breaker in logs and metrics.
const BreakerName = "usage_reads"

var tracer = otel.Tracer("tollgate/analytics")

// errCallerDone marks a read aborted because the caller's context ended.
// The breaker does not count it as a store failure.
var errCallerDone = errors.New("caller context done")

// Config contains configuration for the aggregator.
type Config struct {
	// BreakerFailures is the number of consecutive read failures that open
	// the breaker.
	// Default: 5
	BreakerFailures int

	// BreakerTimeout is how long the breaker stays open before a probe.
	// Default: 30 seconds
	BreakerTimeout time.Duration

	// QueryTimeout bounds one Compute or KeyUsage pass.
	// Default: 5 seconds
	QueryTimeout time.Duration
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() *Config {
	return &Config{
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		QueryTimeout:    5 * time.Second,
	}
}

// Observer receives breaker transitions, typically a metrics collector.
// State is 0 for closed, 1 for half-open and 2 for open.
type Observer interface {
	ObserveBreakerState(name string, state int)
}

// Aggregator computes Metrics from a usage.Storage.
type Aggregator struct {
	storage  usage.Storage
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	observer Observer
	logger   *slog.Logger
}

// New creates an aggregator reading from storage. A nil cfg uses
// DefaultConfig.
func New(storage usage.Storage, cfg *Config) *Aggregator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	a := &Aggregator{
		storage: storage,
		timeout: cfg.QueryTimeout,
		logger:  slog.Default().With("component", "analytics.aggregator"),
	}

	threshold := uint32(cfg.BreakerFailures) //nolint:gosec // validated positive above
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if a.observer != nil {
				a.observer.ObserveBreakerState(name, int(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
	})
	return a
}

// SetObserver sets the breaker observer. It must be called before the
// aggregator is used.
func (a *Aggregator) SetObserver(o Observer) {
	a.observer = o
}

// State returns the breaker state.
func (a *Aggregator) State() gobreaker.State {
	return a.breaker.State()
}

// Compute returns the metrics of the event log as of now. It never fails:
// read errors yield Zero(now).
func (a *Aggregator) Compute(ctx context.Context, now time.Time) Metrics {
	ctx, span := tracer.Start(ctx, "analytics.Compute")
	defer span.End()

	result, err := a.read(ctx, func(ctx context.Context) (interface{}, error) {
		return a.compute(ctx, now)
	})
	if errors.Is(err, errCallerDone) {
		a.logger.DebugContext(ctx, "metrics request abandoned", "error", err)
		return Zero(now)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.ErrorContext(ctx, "failed to compute metrics",
			"error", err,
			"breaker_state", a.breaker.State().String(),
		)
		return Zero(now)
	}

	m := result.(Metrics)
	span.SetAttributes(
		attribute.Int64("tollgate.metrics.total_requests", m.TotalRequests),
		attribute.Int64("tollgate.metrics.requests_today", m.RequestsToday),
	)
	return m
}

// read runs fn through the breaker under the query timeout. Failures caused
// by the caller going away are tagged with errCallerDone.
func (a *Aggregator) read(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errCallerDone, err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return a.breaker.Execute(func() (interface{}, error) {
		result, err := fn(queryCtx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return result, err
	})
}

// compute reads the seven-day window in one query and buckets it, then reads
// the totals. The window is read first so the totals always cover it.
func (a *Aggregator) compute(ctx context.Context, now time.Time) (Metrics, error) {
	starts := dayStarts(now)
	events, err := a.storage.Query(ctx, &usage.Query{StartTime: &starts[0]})
	if err != nil {
		return Metrics{}, err
	}
	stats, err := a.storage.Stats(ctx, nil)
	if err != nil {
		return Metrics{}, err
	}

	m := Zero(now)
	m.TotalRequests = stats.Total
	m.SuccessRate = successRate(stats)
	m.AvgResponseTimeMs = avgResponseTime(stats)

	today := starts[Days-1]
	for _, ev := range events {
		if !ev.Timestamp.Before(today) {
			m.RequestsToday++
		}
		if i := dayIndex(starts, ev.Timestamp); i >= 0 {
			m.UsageByDay[i].Count++
		}
	}
	return m, nil
}

// KeyUsage returns the number of recorded events per key id. It never
// fails: read errors yield an empty map.
func (a *Aggregator) KeyUsage(ctx context.Context) map[string]int64 {
	ctx, span := tracer.Start(ctx, "analytics.KeyUsage", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result, err := a.read(ctx, func(ctx context.Context) (interface{}, error) {
		return a.storage.CountByKey(ctx)
	})
	if err != nil && !errors.Is(err, errCallerDone) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.ErrorContext(ctx, "failed to count usage by key", "error", err)
	}
	if err != nil {
		return map[string]int64{}
	}
	counts := result.(map[string]int64)
	if counts == nil {
		counts = map[string]int64{}
	}
	return counts
}

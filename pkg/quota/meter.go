package quota

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/telemetry/tracing"
	"tollgate-hq/tollgate/pkg/usage"
)

const tracerName = "tollgate/quota"

// DefaultRecordTimeout bounds RecordUsage.
const DefaultRecordTimeout = 5 * time.Second

// Options configures a Meter.
type Options struct {
	// Observer receives admission outcomes. Optional.
	Observer Observer

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// RecordTimeout bounds RecordUsage.
	// Default: 5 seconds
	RecordTimeout time.Duration

	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Meter admits consumptions against per-key ceilings.
type Meter struct {
	counter  Counter
	recorder Recorder
	observer Observer
	now      func() time.Time
	timeout  time.Duration
	tracer   trace.Tracer
	logger   *slog.Logger

	// locks holds one *sync.Mutex per key id.
	locks sync.Map
}

// NewMeter creates a meter over counter and recorder.
func NewMeter(counter Counter, recorder Recorder, opts Options) *Meter {
	m := &Meter{
		counter:  counter,
		recorder: recorder,
		observer: opts.Observer,
		now:      opts.Clock,
		timeout:  opts.RecordTimeout,
		tracer:   opts.Tracer,
		logger:   slog.Default().With("component", "quota.meter"),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.timeout <= 0 {
		m.timeout = DefaultRecordTimeout
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

// CheckAndConsume consumes one unit of keyID's quota if any is left.
// A denial is reported through Admission.Allowed, not as an error. Unknown
// keys return an apikey.ErrNotFound error.
func (m *Meter) CheckAndConsume(ctx context.Context, keyID string) (Admission, error) {
	ctx, span := m.tracer.Start(ctx, "quota.CheckAndConsume",
		trace.WithAttributes(tracing.AttrKeyID.String(keyID)))
	defer span.End()

	start := time.Now()

	mu := m.lock(keyID)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Admission{}, apikey.Internal("quota.CheckAndConsume", err)
	}

	inc, err := m.counter.IncrementUsage(ctx, keyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Admission{}, err
	}

	adm := Admission{
		Allowed:    inc.Applied,
		KeyID:      keyID,
		UsageCount: inc.UsageCount,
		MaxUses:    inc.MaxUses,
		Remaining:  max(0, inc.MaxUses-inc.UsageCount),
	}
	if inc.Applied {
		adm.Sequence = inc.UsageCount
	}

	tracing.SetQuotaAttributes(span, adm.Allowed, adm.Remaining)
	span.SetAttributes(attribute.Int64("tollgate.quota.usage_count", adm.UsageCount))
	if m.observer != nil {
		m.observer.ObserveAdmission(adm.Allowed, time.Since(start))
	}

	if !adm.Allowed {
		m.logger.Debug("quota exhausted",
			"key_id", keyID,
			"usage_count", adm.UsageCount,
			"max_uses", adm.MaxUses,
		)
	}
	return adm, nil
}

// RecordUsage appends the usage event of an admitted consumption and moves
// the key's last-used time forward. It never fails the caller: errors are
// logged and counted. The caller's cancellation does not abort recording.
func (m *Meter) RecordUsage(ctx context.Context, s Sample) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	ctx, span := m.tracer.Start(ctx, "quota.RecordUsage",
		trace.WithAttributes(
			tracing.AttrKeyID.String(s.KeyID),
			attribute.Int64("tollgate.usage.sequence", s.Sequence),
			attribute.Bool("tollgate.usage.success", s.Success),
		))
	defer span.End()

	now := m.now().UTC()
	ev := &usage.Event{
		ID:             uuid.NewString(),
		KeyID:          s.KeyID,
		Sequence:       s.Sequence,
		Timestamp:      now,
		ResponseTimeMs: s.ResponseTimeMs,
		Success:        s.Success,
	}

	if err := m.recorder.Record(ctx, ev); err != nil {
		span.RecordError(err)
		m.fail("failed to record usage event", s, err)
	}

	if err := m.counter.Touch(ctx, s.KeyID, now); err != nil {
		// A key deleted between admission and recording keeps its events.
		if errors.Is(err, apikey.ErrNotFound) {
			m.logger.Debug("usage recorded for deleted key", "key_id", s.KeyID)
			return
		}
		span.RecordError(err)
		m.fail("failed to update last used time", s, err)
	}
}

// Forget releases the per-key lock of a deleted key.
func (m *Meter) Forget(keyID string) {
	m.locks.Delete(keyID)
}

func (m *Meter) lock(keyID string) *sync.Mutex {
	if mu, ok := m.locks.Load(keyID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := m.locks.LoadOrStore(keyID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Meter) fail(msg string, s Sample, err error) {
	if m.observer != nil {
		m.observer.ObserveUsageFailure()
	}
	m.logger.Error(msg,
		"key_id", s.KeyID,
		"sequence", s.Sequence,
		"error", err,
	)
}

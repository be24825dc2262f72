package quota

import (
	"context"
	"fmt"
	"time"

	"tollgate-hq/tollgate/pkg/apikey"
	"tollgate-hq/tollgate/pkg/usage"
)

// Counter is the part of apikey.Backend the meter mutates.
type Counter interface {
	IncrementUsage(ctx context.Context, id string) (apikey.Increment, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// Recorder accepts usage events. *recorder.Recorder implements it.
type Recorder interface {
	Record(ctx context.Context, ev *usage.Event) error
}

// Observer receives admission outcomes, typically a metrics collector.
type Observer interface {
	ObserveAdmission(allowed bool, d time.Duration)
	ObserveUsageFailure()
}

// Admission is the outcome of CheckAndConsume.
type Admission struct {
	// Allowed is true when a unit was consumed.
	Allowed bool

	// KeyID is the consumed key.
	KeyID string

	// Sequence is the usage count right after this consumption. Zero when
	// denied.
	Sequence int64

	// UsageCount is the counter after the call.
	UsageCount int64

	// MaxUses is the key's ceiling.
	MaxUses int64

	// Remaining is max(0, MaxUses-UsageCount).
	Remaining int64
}

// Err returns nil for an allowed admission and an *ExceededError otherwise.
func (a Admission) Err() error {
	if a.Allowed {
		return nil
	}
	return &ExceededError{KeyID: a.KeyID, UsageCount: a.UsageCount, MaxUses: a.MaxUses}
}

// Sample describes the outcome of an admitted request.
type Sample struct {
	KeyID string

	// Sequence is Admission.Sequence of the consumption being measured.
	Sequence int64

	// ResponseTimeMs is the measured latency, if any.
	ResponseTimeMs *int64

	Success bool
}

// ExceededError reports an exhausted key. It matches apikey.ErrQuotaExceeded.
type ExceededError struct {
	KeyID      string
	UsageCount int64
	MaxUses    int64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("api key %s exhausted its quota (%d/%d)", e.KeyID, e.UsageCount, e.MaxUses)
}

// Unwrap returns apikey.ErrQuotaExceeded.
func (e *ExceededError) Unwrap() error {
	return apikey.ErrQuotaExceeded
}

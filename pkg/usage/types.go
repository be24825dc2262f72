package usage

import (
	"context"
	"io"
	"time"
)

// Event records one admitted consumption of an API key.
type Event struct {
	// ID is a UUID v4.
	ID string `json:"id"`

	// KeyID references the consumed API key.
	KeyID string `json:"keyId"`

	// Sequence is the key's usage count right after this consumption.
	Sequence int64 `json:"sequence"`

	// Timestamp is when the event was recorded (UTC).
	Timestamp time.Time `json:"timestamp"`

	// ResponseTimeMs is the measured handling latency, if sampled.
	ResponseTimeMs *int64 `json:"responseTimeMs,omitempty"`

	// Success is the outcome of the gated action.
	Success bool `json:"success"`
}

// Sort orders for Query.SortOrder.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Query filters events. All filters are optional and combined with AND.
type Query struct {
	// KeyID restricts results to one key.
	KeyID string `json:"keyId,omitempty"`

	// StartTime is inclusive.
	StartTime *time.Time `json:"startTime,omitempty"`

	// EndTime is exclusive.
	EndTime *time.Time `json:"endTime,omitempty"`

	// Success restricts results by outcome.
	Success *bool `json:"success,omitempty"`

	// Limit caps the number of results. Zero is unlimited.
	Limit int `json:"limit,omitempty"`

	// Offset skips results.
	Offset int `json:"offset,omitempty"`

	// SortOrder is SortAsc (default) or SortDesc by timestamp.
	SortOrder string `json:"sortOrder,omitempty"`
}

// Matches reports whether ev satisfies the filters of q. Pagination and
// ordering are ignored.
func (q *Query) Matches(ev *Event) bool {
	if q == nil {
		return true
	}
	if q.KeyID != "" && ev.KeyID != q.KeyID {
		return false
	}
	if q.StartTime != nil && ev.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && !ev.Timestamp.Before(*q.EndTime) {
		return false
	}
	if q.Success != nil && ev.Success != *q.Success {
		return false
	}
	return true
}

// Stats aggregates events matching a query.
type Stats struct {
	// Total is the number of events.
	Total int64

	// Successful is the number of events with Success set.
	Successful int64

	// Timed is the number of events carrying a response time sample.
	Timed int64

	// TotalResponseMs is the sum of all response time samples.
	TotalResponseMs int64
}

// Storage persists usage events. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Append adds an event to the log.
	Append(ctx context.Context, ev *Event) error

	// Query returns events matching q.
	Query(ctx context.Context, q *Query) ([]*Event, error)

	// Count returns the number of events matching q.
	Count(ctx context.Context, q *Query) (int64, error)

	// Stats aggregates events matching q.
	Stats(ctx context.Context, q *Query) (*Stats, error)

	// CountByKey returns the number of events per key id.
	CountByKey(ctx context.Context) (map[string]int64, error)

	// Delete removes events matching q and returns how many were removed.
	// Only retention enforcement deletes events.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Ping checks storage connectivity.
	Ping(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}

// Exporter writes events in a serialization format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}

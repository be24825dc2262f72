package apikey

import (
	"context"
	"time"
)

// APIKey is the issued credential as seen by callers of Store.
type APIKey struct {
	// ID is the opaque, immutable identifier.
	ID string

	// Name is the user-supplied label.
	Name string

	// Secret is the bearer token. Listings mask it before rendering.
	Secret string

	// CreatedAt is the creation time (UTC).
	CreatedAt time.Time

	// LastUsedAt is the time of the most recent recorded usage, if any.
	LastUsedAt *time.Time

	// UsageCount is the number of admitted consumptions.
	UsageCount int64

	// MaxUses is the quota ceiling fixed at creation.
	MaxUses int64
}

// RemainingUses returns max(0, MaxUses-UsageCount).
func (k *APIKey) RemainingUses() int64 {
	if r := k.MaxUses - k.UsageCount; r > 0 {
		return r
	}
	return 0
}

// Masked returns a copy of k with the secret masked.
func (k *APIKey) Masked() *APIKey {
	c := *k
	c.Secret = Mask(k.Secret)
	return &c
}

// Record is the persisted form of an API key. Secret holds the sealed
// secret as produced by a Sealer.
type Record struct {
	ID         string
	Name       string
	SecretHash string
	Secret     []byte
	CreatedAt  time.Time
	LastUsedAt *time.Time
	UsageCount int64
	MaxUses    int64
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Secret = append([]byte(nil), r.Secret...)
	if r.LastUsedAt != nil {
		t := *r.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// Increment is the outcome of a conditional usage increment.
type Increment struct {
	// Applied is true when the counter was below the ceiling and was
	// incremented.
	Applied bool

	// UsageCount is the counter after the operation.
	UsageCount int64

	// MaxUses is the key's ceiling.
	MaxUses int64
}

// Backend persists API key records. Implementations must be safe for
// concurrent use.
//
// IncrementUsage is the only mutation of the usage counter and must be an
// indivisible increment-with-ceiling: it increments UsageCount by one if and
// only if UsageCount < MaxUses, in a single atomic step of the backend.
type Backend interface {
	// Insert stores a new record. It returns an ErrConflict error when the
	// id or the secret digest is already taken.
	Insert(ctx context.Context, rec *Record) error

	// Get returns the record with the given id or an ErrNotFound error.
	Get(ctx context.Context, id string) (*Record, error)

	// GetBySecretHash returns the record whose secret digest matches.
	GetBySecretHash(ctx context.Context, hash string) (*Record, error)

	// Rename updates the name of a record and returns the updated record.
	Rename(ctx context.Context, id, name string) (*Record, error)

	// Touch sets LastUsedAt to at unless a later time is already stored.
	Touch(ctx context.Context, id string, at time.Time) error

	// IncrementUsage atomically increments the usage counter with a ceiling.
	IncrementUsage(ctx context.Context, id string) (Increment, error)

	// Delete removes a record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns all records in creation order.
	List(ctx context.Context) ([]*Record, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

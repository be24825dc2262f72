package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxUses is the quota ceiling assigned to new keys when Options
// does not set one.
const DefaultMaxUses = 1000

// maxCreateAttempts bounds secret regeneration on index collisions.
const maxCreateAttempts = 5

// Options configures a Store.
type Options struct {
	// MaxUses is the ceiling assigned to every new key.
	MaxUses int64

	// Generator produces secrets. Defaults to NewGenerator(DefaultSecretPrefix, DefaultSecretBytes).
	Generator *Generator

	// Sealer protects secrets at rest. Defaults to PlainSealer.
	Sealer Sealer

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// NewID returns a fresh key id. Defaults to uuid.NewString.
	NewID func() string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the authoritative CRUD service for API keys.
type Store struct {
	backend Backend
	gen     *Generator
	sealer  Sealer
	maxUses int64
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts Options) *Store {
	s := &Store{
		backend: backend,
		gen:     opts.Generator,
		sealer:  opts.Sealer,
		maxUses: opts.MaxUses,
		now:     opts.Clock,
		newID:   opts.NewID,
		logger:  opts.Logger,
	}
	if s.gen == nil {
		s.gen = NewGenerator(DefaultSecretPrefix, DefaultSecretBytes)
	}
	if s.sealer == nil {
		s.sealer = PlainSealer{}
	}
	if s.maxUses <= 0 {
		s.maxUses = DefaultMaxUses
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "apikey.store")
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// MaxUses returns the ceiling assigned to new keys.
func (s *Store) MaxUses() int64 {
	return s.maxUses
}

// Create issues a new key. The returned key carries the full secret.
func (s *Store) Create(ctx context.Context, name string) (*APIKey, error) {
	name, err := validateName("apikey.Create", name)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		secret, err := s.gen.Generate()
		if err != nil {
			return nil, Internal("apikey.Create", err)
		}

		id := s.newID()
		sealed, err := s.sealer.Seal(id, secret)
		if err != nil {
			return nil, Internal("apikey.Create", err)
		}

		rec := &Record{
			ID:         id,
			Name:       name,
			SecretHash: HashSecret(secret),
			Secret:     sealed,
			CreatedAt:  s.now().UTC(),
			MaxUses:    s.maxUses,
		}

		err = s.backend.Insert(ctx, rec)
		if err == nil {
			s.logger.Info("api key created",
				"key_id", id,
				"name", name,
				"max_uses", s.maxUses,
			)
			return toAPIKey(rec, secret), nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}

		lastErr = err
		s.logger.Warn("api key collision, regenerating",
			"attempt", attempt,
			"error", err,
		)
	}

	// lastErr is formatted, not wrapped, so the result is not a Conflict.
	return nil, Internal("apikey.Create", fmt.Errorf("exhausted %d attempts: %v", maxCreateAttempts, lastErr))
}

// GetByID returns the key with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*APIKey, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NotFound("apikey.GetByID", id)
	}
	rec, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open("apikey.GetByID", rec)
}

// GetBySecret resolves a presented secret to its key. Unknown and blank
// secrets are NotFound.
func (s *Store) GetBySecret(ctx context.Context, secret string) (*APIKey, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &Error{Kind: ErrNotFound, Op: "apikey.GetBySecret", Message: "Invalid API key"}
	}
	rec, err := s.backend.GetBySecretHash(ctx, HashSecret(secret))
	if err != nil {
		return nil, err
	}
	return toAPIKey(rec, secret), nil
}

// Reveal returns the key with its unsealed secret. Every call is logged.
func (s *Store) Reveal(ctx context.Context, id string) (*APIKey, error) {
	key, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("api key secret revealed", "key_id", id)
	return key, nil
}

// Update renames a key. Only the name is mutable.
func (s *Store) Update(ctx context.Context, id, name string) (*APIKey, error) {
	name, err := validateName("apikey.Update", name)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Rename(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("api key renamed", "key_id", id, "name", name)
	return s.open("apikey.Update", rec)
}

// Delete removes a key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	ok, err := s.backend.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("api key deleted", "key_id", id)
	}
	return ok, nil
}

// List returns every key in creation order.
func (s *Store) List(ctx context.Context) ([]*APIKey, error) {
	recs, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]*APIKey, 0, len(recs))
	for _, rec := range recs {
		key, err := s.open("apikey.List", rec)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) open(op string, rec *Record) (*APIKey, error) {
	secret, err := s.sealer.Open(rec.ID, rec.Secret)
	if err != nil {
		return nil, Internal(op, err)
	}
	return toAPIKey(rec, secret), nil
}

func validateName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", InvalidArgument(op, "Name is required and must be a non-empty string")
	}
	return name, nil
}

func toAPIKey(rec *Record, secret string) *APIKey {
	key := &APIKey{
		ID:         rec.ID,
		Name:       rec.Name,
		Secret:     secret,
		CreatedAt:  rec.CreatedAt,
		UsageCount: rec.UsageCount,
		MaxUses:    rec.MaxUses,
	}
	if rec.LastUsedAt != nil {
		t := *rec.LastUsedAt
		key.LastUsedAt = &t
	}
	return key
}

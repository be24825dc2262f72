package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"tollgate-hq/tollgate/pkg/apikey"
)

// insertScript creates a key record unless the id or the secret digest is
// already taken.
// KEYS[1] = record hash, KEYS[2] = secret index, KEYS[3] = order set, KEYS[4] = sequence
// ARGV = id, name, secret_hash, secret, created_at, usage_count, max_uses
var insertScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return -1
	end
	if redis.call('EXISTS', KEYS[2]) == 1 then
		return -2
	end
	redis.call('HSET', KEYS[1],
		'id', ARGV[1], 'name', ARGV[2], 'secret_hash', ARGV[3], 'secret', ARGV[4],
		'created_at', ARGV[5], 'usage_count', ARGV[6], 'max_uses', ARGV[7])
	redis.call('SET', KEYS[2], ARGV[1])
	local seq = redis.call('INCR', KEYS[4])
	redis.call('ZADD', KEYS[3], seq, ARGV[1])
	return 1
`)

// incrementScript increments usage_count if and only if it is below max_uses.
// KEYS[1] = record hash
// Returns {applied, usage_count, max_uses}; applied is -1 for a missing key.
var incrementScript = redis.NewScript(`
	local v = redis.call('HMGET', KEYS[1], 'usage_count', 'max_uses')
	if not v[1] then
		return {-1, 0, 0}
	end
	local count = tonumber(v[1])
	local max = tonumber(v[2])
	if count >= max then
		return {0, count, max}
	end
	count = redis.call('HINCRBY', KEYS[1], 'usage_count', 1)
	return {1, count, max}
`)

// renameScript updates the name of an existing record.
// KEYS[1] = record hash, ARGV[1] = name
var renameScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'name', ARGV[1])
	return 1
`)

// touchScript moves last_used_at forward.
// KEYS[1] = record hash, ARGV[1] = unix nanos
var touchScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	local cur = redis.call('HGET', KEYS[1], 'last_used_at')
	if (not cur) or tonumber(cur) < tonumber(ARGV[1]) then
		redis.call('HSET', KEYS[1], 'last_used_at', ARGV[1])
	end
	return 1
`)

// deleteScript removes a record, its secret index entry and its order entry.
// The caller reads the digest first so every touched key is declared.
// KEYS[1] = record hash, KEYS[2] = order set, KEYS[3] = secret index
// ARGV[1] = id, ARGV[2] = expected secret_hash
// Returns 0 for a missing record and -1 when the digest changed.
var deleteScript = redis.NewScript(`
	local hash = redis.call('HGET', KEYS[1], 'secret_hash')
	if not hash then
		return 0
	end
	if hash ~= ARGV[2] then
		return -1
	end
	redis.call('DEL', KEYS[1])
	redis.call('DEL', KEYS[3])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return 1
`)

// deleteAttempts bounds Delete retries when the record is replaced between
// reading its digest and running deleteScript.
const deleteAttempts = 3

// RedisBackendConfig configures the Redis key backend.
type RedisBackendConfig struct {
	Address  string
	Password string
	DB       int

	// Prefix namespaces every key written by the backend.
	// Default: "tollgate:"
	Prefix string

	PoolSize    int
	DialTimeout time.Duration

	// ConnectRetries is the number of connection attempts after the first
	// one fails.
	// Default: 5
	ConnectRetries int
}

// RedisBackend implements apikey.Backend on Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRedisBackend connects to Redis, retrying with exponential backoff.
func NewRedisBackend(ctx context.Context, cfg RedisBackendConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tollgate:"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ConnectRetries <= 0 {
		cfg.ConnectRetries = 5
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	logger := slog.Default().With("component", "apikey.storage.redis")

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err != nil {
			logger.Debug("Redis connection failed, retrying",
				"address", cfg.Address,
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(cfg.ConnectRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", attempt, err)
	}

	logger.Info("Redis key storage connected",
		"address", cfg.Address,
		"prefix", cfg.Prefix,
		"attempts", attempt,
	)

	return &RedisBackend{client: client, prefix: cfg.Prefix, logger: logger}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "tollgate:"
	}
	return &RedisBackend{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "apikey.storage.redis"),
	}
}

func (r *RedisBackend) recordKey(id string) string { return r.prefix + "key:" + id }
func (r *RedisBackend) secretPrefix() string      { return r.prefix + "secret:" }
func (r *RedisBackend) orderKey() string          { return r.prefix + "keys" }
func (r *RedisBackend) seqKey() string            { return r.prefix + "keys:seq" }

// Insert implements apikey.Backend.
func (r *RedisBackend) Insert(ctx context.Context, rec *apikey.Record) error {
	res, err := insertScript.Run(ctx, r.client,
		[]string{r.recordKey(rec.ID), r.secretPrefix() + rec.SecretHash, r.orderKey(), r.seqKey()},
		rec.ID, rec.Name, rec.SecretHash, rec.Secret,
		rec.CreatedAt.UnixNano(), rec.UsageCount, rec.MaxUses,
	).Int64()
	if err != nil {
		return apikey.Internal("redis.Insert", err)
	}
	switch res {
	case -1:
		return apikey.Conflict("redis.Insert", fmt.Errorf("id %q already exists", rec.ID))
	case -2:
		return apikey.Conflict("redis.Insert", fmt.Errorf("secret digest already indexed"))
	}
	return nil
}

// Get implements apikey.Backend.
func (r *RedisBackend) Get(ctx context.Context, id string) (*apikey.Record, error) {
	fields, err := r.client.HGetAll(ctx, r.recordKey(id)).Result()
	if err != nil {
		return nil, apikey.Internal("redis.Get", err)
	}
	if len(fields) == 0 {
		return nil, apikey.NotFound("redis.Get", id)
	}
	rec, err := parseRecord(fields)
	if err != nil {
		return nil, apikey.Internal("redis.Get", err)
	}
	return rec, nil
}

// GetBySecretHash implements apikey.Backend.
func (r *RedisBackend) GetBySecretHash(ctx context.Context, hash string) (*apikey.Record, error) {
	id, err := r.client.Get(ctx, r.secretPrefix()+hash).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &apikey.Error{Kind: apikey.ErrNotFound, Op: "redis.GetBySecretHash", Message: "Invalid API key"}
	}
	if err != nil {
		return nil, apikey.Internal("redis.GetBySecretHash", err)
	}
	rec, err := r.Get(ctx, id)
	if errors.Is(err, apikey.ErrNotFound) {
		// Index entry outlived its record.
		return nil, &apikey.Error{Kind: apikey.ErrNotFound, Op: "redis.GetBySecretHash", Message: "Invalid API key"}
	}
	return rec, err
}

// Rename implements apikey.Backend.
func (r *RedisBackend) Rename(ctx context.Context, id, name string) (*apikey.Record, error) {
	ok, err := renameScript.Run(ctx, r.client, []string{r.recordKey(id)}, name).Int64()
	if err != nil {
		return nil, apikey.Internal("redis.Rename", err)
	}
	if ok == 0 {
		return nil, apikey.NotFound("redis.Rename", id)
	}
	return r.Get(ctx, id)
}

// Touch implements apikey.Backend.
func (r *RedisBackend) Touch(ctx context.Context, id string, at time.Time) error {
	ok, err := touchScript.Run(ctx, r.client, []string{r.recordKey(id)}, at.UnixNano()).Int64()
	if err != nil {
		return apikey.Internal("redis.Touch", err)
	}
	if ok == 0 {
		return apikey.NotFound("redis.Touch", id)
	}
	return nil
}

// IncrementUsage implements apikey.Backend.
func (r *RedisBackend) IncrementUsage(ctx context.Context, id string) (apikey.Increment, error) {
	vals, err := incrementScript.Run(ctx, r.client, []string{r.recordKey(id)}).Int64Slice()
	if err != nil {
		return apikey.Increment{}, apikey.Internal("redis.IncrementUsage", err)
	}
	if len(vals) != 3 {
		return apikey.Increment{}, apikey.Internal("redis.IncrementUsage", fmt.Errorf("unexpected script result %v", vals))
	}
	if vals[0] < 0 {
		return apikey.Increment{}, apikey.NotFound("redis.IncrementUsage", id)
	}
	return apikey.Increment{Applied: vals[0] == 1, UsageCount: vals[1], MaxUses: vals[2]}, nil
}

// Delete implements apikey.Backend.
func (r *RedisBackend) Delete(ctx context.Context, id string) (bool, error) {
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		hash, err := r.client.HGet(ctx, r.recordKey(id), "secret_hash").Result()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, apikey.Internal("redis.Delete", err)
		}

		res, err := deleteScript.Run(ctx, r.client,
			[]string{r.recordKey(id), r.orderKey(), r.secretPrefix() + hash}, id, hash).Int64()
		if err != nil {
			return false, apikey.Internal("redis.Delete", err)
		}
		if res >= 0 {
			return res == 1, nil
		}
	}
	return false, apikey.Internal("redis.Delete", fmt.Errorf("record %s kept changing during delete", id))
}

// List implements apikey.Backend.
func (r *RedisBackend) List(ctx context.Context) ([]*apikey.Record, error) {
	ids, err := r.client.ZRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, apikey.Internal("redis.List", err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.recordKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, apikey.Internal("redis.List", err)
		}
	}

	recs := make([]*apikey.Record, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fields)
		if err != nil {
			return nil, apikey.Internal("redis.List", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Ping implements apikey.Backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return apikey.Internal("redis.Ping", err)
	}
	return nil
}

// Close implements apikey.Backend. Close is idempotent.
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

func parseRecord(fields map[string]string) (*apikey.Record, error) {
	rec := &apikey.Record{
		ID:         fields["id"],
		Name:       fields["name"],
		SecretHash: fields["secret_hash"],
		Secret:     []byte(fields["secret"]),
	}

	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()

	if v, ok := fields["last_used_at"]; ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid last_used_at: %w", err)
		}
		t := time.Unix(0, n).UTC()
		rec.LastUsedAt = &t
	}

	if rec.UsageCount, err = strconv.ParseInt(fields["usage_count"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid usage_count: %w", err)
	}
	if rec.MaxUses, err = strconv.ParseInt(fields["max_uses"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid max_uses: %w", err)
	}
	return rec, nil
}

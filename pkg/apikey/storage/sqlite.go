package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"tollgate-hq/tollgate/pkg/apikey"
)

const keysSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	name         TEXT    NOT NULL,
	secret_hash  TEXT    NOT NULL UNIQUE,
	secret       BLOB    NOT NULL,
	created_at   INTEGER NOT NULL,
	last_used_at INTEGER,
	usage_count  INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
	max_uses     INTEGER NOT NULL CHECK (max_uses > 0),
	CHECK (usage_count <= max_uses)
);
`

const keyColumns = `id, name, secret_hash, secret, created_at, last_used_at, usage_count, max_uses`

// SQLiteBackendConfig configures the SQLite key backend.
type SQLiteBackendConfig struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// SQLiteBackend implements apikey.Backend on SQLite.
type SQLiteBackend struct {
	db                 *sql.DB
	path               string
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
	logger             *slog.Logger
}

// NewSQLiteBackend opens (and creates if needed) the key database.
func NewSQLiteBackend(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.WALMode && cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(keysSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	b := &SQLiteBackend{
		db:                 db,
		path:               cfg.Path,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
		logger:             slog.Default().With("component", "apikey.storage.sqlite"),
	}

	go b.checkpointLoop()

	b.logger.Info("SQLite key storage initialized",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode,
	)
	return b, nil
}

// Insert implements apikey.Backend.
func (s *SQLiteBackend) Insert(ctx context.Context, rec *apikey.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.SecretHash, rec.Secret,
		rec.CreatedAt.UnixNano(), nullTime(rec.LastUsedAt),
		rec.UsageCount, rec.MaxUses,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apikey.Conflict("sqlite.Insert", err)
		}
		return apikey.Internal("sqlite.Insert", err)
	}
	return nil
}

// Get implements apikey.Backend.
func (s *SQLiteBackend) Get(ctx context.Context, id string) (*apikey.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apikey.NotFound("sqlite.Get", id)
	}
	if err != nil {
		return nil, apikey.Internal("sqlite.Get", err)
	}
	return rec, nil
}

// GetBySecretHash implements apikey.Backend.
func (s *SQLiteBackend) GetBySecretHash(ctx context.Context, hash string) (*apikey.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE secret_hash = ?`, hash)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apikey.Error{Kind: apikey.ErrNotFound, Op: "sqlite.GetBySecretHash", Message: "Invalid API key"}
	}
	if err != nil {
		return nil, apikey.Internal("sqlite.GetBySecretHash", err)
	}
	return rec, nil
}

// Rename implements apikey.Backend.
func (s *SQLiteBackend) Rename(ctx context.Context, id, name string) (*apikey.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE api_keys SET name = ? WHERE id = ? RETURNING `+keyColumns, name, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apikey.NotFound("sqlite.Rename", id)
	}
	if err != nil {
		return nil, apikey.Internal("sqlite.Rename", err)
	}
	return rec, nil
}

// Touch implements apikey.Backend.
func (s *SQLiteBackend) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = MAX(COALESCE(last_used_at, 0), ?) WHERE id = ?`,
		at.UnixNano(), id)
	if err != nil {
		return apikey.Internal("sqlite.Touch", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apikey.NotFound("sqlite.Touch", id)
	}
	return nil
}

// IncrementUsage implements apikey.Backend with a single conditional
// UPDATE. When no row is updated, a follow-up read tells a missing key from
// an exhausted one.
func (s *SQLiteBackend) IncrementUsage(ctx context.Context, id string) (apikey.Increment, error) {
	var inc apikey.Increment
	err := s.db.QueryRowContext(ctx,
		`UPDATE api_keys SET usage_count = usage_count + 1
		 WHERE id = ? AND usage_count < max_uses
		 RETURNING usage_count, max_uses`, id,
	).Scan(&inc.UsageCount, &inc.MaxUses)
	if err == nil {
		inc.Applied = true
		return inc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return apikey.Increment{}, apikey.Internal("sqlite.IncrementUsage", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT usage_count, max_uses FROM api_keys WHERE id = ?`, id,
	).Scan(&inc.UsageCount, &inc.MaxUses)
	if errors.Is(err, sql.ErrNoRows) {
		return apikey.Increment{}, apikey.NotFound("sqlite.IncrementUsage", id)
	}
	if err != nil {
		return apikey.Increment{}, apikey.Internal("sqlite.IncrementUsage", err)
	}
	return inc, nil
}

// Delete implements apikey.Backend.
func (s *SQLiteBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return false, apikey.Internal("sqlite.Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apikey.Internal("sqlite.Delete", err)
	}
	return n > 0, nil
}

// List implements apikey.Backend.
func (s *SQLiteBackend) List(ctx context.Context) ([]*apikey.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+keyColumns+` FROM api_keys ORDER BY created_at, seq`)
	if err != nil {
		return nil, apikey.Internal("sqlite.List", err)
	}
	defer rows.Close()

	recs := []*apikey.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apikey.Internal("sqlite.List", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apikey.Internal("sqlite.List", err)
	}
	return recs, nil
}

// Ping implements apikey.Backend.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apikey.Internal("sqlite.Ping", err)
	}
	return nil
}

// Close stops the checkpoint loop and closes the database. Close is
// idempotent.
func (s *SQLiteBackend) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.done)
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
		s.logger.Info("SQLite key storage closed")
	})
	return closeErr
}

func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("WAL checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*apikey.Record, error) {
	var (
		rec       apikey.Record
		createdAt int64
		lastUsed  sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.SecretHash, &rec.Secret,
		&createdAt, &lastUsed, &rec.UsageCount, &rec.MaxUses); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if lastUsed.Valid {
		t := time.Unix(0, lastUsed.Int64).UTC()
		rec.LastUsedAt = &t
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tollgate-hq/tollgate/pkg/usage"
)

// SQLiteConfig contains configuration for the SQLite event storage.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables write-ahead logging so readers do not block the
	// recorder.
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/usage.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements usage.Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the event database and applies the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, usage.NewStorageError("sqlite", "open", fmt.Errorf("db path cannot be empty"))
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "usage.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, usage.NewStorageError("sqlite", "mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite usage storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return usage.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return usage.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return usage.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return usage.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return usage.NewStorageError("sqlite", "get_schema_version", err)
	}
	if !version.Valid || version.Int64 != SchemaVersion {
		return usage.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// Append implements usage.Storage.
func (s *SQLiteStorage) Append(ctx context.Context, ev *usage.Event) error {
	var responseTime any
	if ev.ResponseTimeMs != nil {
		responseTime = *ev.ResponseTimeMs
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, key_id, sequence, timestamp, response_time_ms, success)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.KeyID, ev.Sequence, ev.Timestamp.UnixNano(), responseTime, ev.Success,
	)
	if err != nil {
		return usage.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Query implements usage.Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *usage.Query) ([]*usage.Event, error) {
	where, args := buildWhereClause(q)

	query := "SELECT id, key_id, sequence, timestamp, response_time_ms, success FROM usage_events" + where

	order := "ASC"
	if q != nil && q.SortOrder == usage.SortDesc {
		order = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY timestamp %s, key_id, sequence %s", order, order)

	if q != nil && (q.Limit > 0 || q.Offset > 0) {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	events := []*usage.Event{}
	for rows.Next() {
		var (
			ev           usage.Event
			ts           int64
			responseTime sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.KeyID, &ev.Sequence, &ts, &responseTime, &ev.Success); err != nil {
			return nil, usage.NewStorageError("sqlite", "scan", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		if responseTime.Valid {
			v := responseTime.Int64
			ev.ResponseTimeMs = &v
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "query", err)
	}
	return events, nil
}

// Count implements usage.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *usage.Query) (int64, error) {
	where, args := buildWhereClause(q)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_events"+where, args...).Scan(&count); err != nil {
		return 0, usage.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Stats implements usage.Storage.
func (s *SQLiteStorage) Stats(ctx context.Context, q *usage.Query) (*usage.Stats, error) {
	where, args := buildWhereClause(q)

	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		COUNT(response_time_ms),
		COALESCE(SUM(response_time_ms), 0)
	FROM usage_events` + where

	stats := &usage.Stats{}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total, &stats.Successful, &stats.Timed, &stats.TotalResponseMs,
	); err != nil {
		return nil, usage.NewStorageError("sqlite", "stats", err)
	}
	return stats, nil
}

// CountByKey implements usage.Storage.
func (s *SQLiteStorage) CountByKey(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key_id, COUNT(*) FROM usage_events GROUP BY key_id")
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "count_by_key", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			keyID string
			n     int64
		)
		if err := rows.Scan(&keyID, &n); err != nil {
			return nil, usage.NewStorageError("sqlite", "scan", err)
		}
		counts[keyID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "count_by_key", err)
	}
	return counts, nil
}

// Delete implements usage.Storage.
func (s *SQLiteStorage) Delete(ctx context.Context, q *usage.Query) (int64, error) {
	where, args := buildWhereClause(q)

	result, err := s.db.ExecContext(ctx, "DELETE FROM usage_events"+where, args...)
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "delete", err)
	}
	return n, nil
}

// Ping implements usage.Storage.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return usage.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close implements usage.Storage.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return usage.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite usage storage closed")
	return nil
}

// buildWhereClause renders the filters of q. The returned clause is empty
// or starts with " WHERE ".
func buildWhereClause(q *usage.Query) (string, []any) {
	if q == nil {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)
	if q.KeyID != "" {
		conds = append(conds, "key_id = ?")
		args = append(args, q.KeyID)
	}
	if q.StartTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		conds = append(conds, "timestamp < ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.Success != nil {
		conds = append(conds, "success = ?")
		args = append(args, *q.Success)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

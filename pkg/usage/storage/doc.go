// Package storage provides usage.Storage implementations.
//
//   - MemoryStorage keeps events in a slice. Used by tests and by
//     deployments that do not need the log to survive restarts.
//   - SQLiteStorage persists events in a usage_events table indexed by
//     timestamp and by (key_id, sequence).
package storage

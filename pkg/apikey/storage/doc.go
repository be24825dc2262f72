// Package storage provides apikey.Backend implementations.
//
// Three backends are available:
//
//   - MemoryBackend: maps guarded by a RWMutex. Fast, not persistent. Used by
//     tests and by single-process deployments that accept losing keys on
//     restart.
//   - SQLiteBackend: a single api_keys table in SQLite (modernc.org/sqlite,
//     no cgo) with WAL mode and periodic checkpoints. The quota increment is
//     one conditional UPDATE ... RETURNING statement.
//   - RedisBackend: one hash per key plus a secret-digest index and a
//     creation-ordered sorted set. Insert and the quota increment run as Lua
//     scripts so several gateway processes can share one key set.
//
// All backends return errors that match the apikey error kinds.
package storage

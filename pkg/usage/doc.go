// Package usage provides the append-only log of usage events.
//
// Every admitted consumption of an API key produces one Event. Events are
// immutable once appended and are kept after their key is deleted, so
// metrics and audits still see them.
//
// # Ordering
//
// An event's Sequence is the key's usage count right after the consumption
// it measures. Since the counter only increases by one per admission, the
// per-key order of the log is the Sequence order, regardless of the order in
// which asynchronous writes land in storage.
//
// # Subpackages
//
//   - storage: memory and SQLite implementations of Storage
//   - recorder: asynchronous, retrying writer used by the quota meter
//   - retention: age and count based pruning on a cron schedule
//   - export: JSON and CSV export of query results
package usage

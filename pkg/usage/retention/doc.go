// Package retention enforces the retention policy of the usage log.
//
// Usage events are append-only; pruning is the only path that removes them.
// A Pruner deletes events older than Days and, when MaxRecords is set, the
// oldest events beyond that count. Pruned events can be archived as JSON
// first. A Scheduler runs the pruner on a cron expression.
//
// Pruning changes what the metrics aggregator reports for the pruned
// period; the default policy keeps events forever.
package retention

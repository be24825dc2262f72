// Package analytics derives dashboard metrics from the usage event log.
//
// The Aggregator never fails its caller. Any read error, including an open
// circuit breaker in front of the event store, yields a zeroed Metrics value
// that still lists the last seven days, and the error is logged.
//
// Day boundaries are UTC midnights. UsageByDay always holds seven entries,
// oldest first, ending with the day of the reference time.
package analytics

// Package recorder writes usage events to storage off the request path.
//
// Record enqueues an event on a bounded channel and returns immediately. A
// single worker drains the channel and appends each event, retrying failed
// appends with exponential backoff. When the buffer is full the event is
// dropped and reported; the quota unit it measures stays consumed.
//
// With AsyncBuffer set to zero the recorder writes synchronously, which
// tests and the CLI use to observe events immediately.
//
// Close stops accepting events and blocks until every buffered event has
// been written or has exhausted its retries.
package recorder

// Package export writes usage events as JSON or CSV.
//
// Both exporters implement usage.Exporter. JSON output is always an array;
// CSV output has one row per event with an optional header row.
package export

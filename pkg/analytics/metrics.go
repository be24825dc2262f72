package analytics

import (
	"math"
	"time"

	"tollgate-hq/tollgate/pkg/usage"
)

// Days is the number of entries in Metrics.UsageByDay.
const Days = 7

// DateLayout formats DayCount.Date.
const DateLayout = "2006-01-02"

// Metrics summarizes the usage event log.
type Metrics struct {
	TotalRequests     int64      `json:"totalRequests"`
	RequestsToday     int64      `json:"requestsToday"`
	SuccessRate       float64    `json:"successRate"`
	AvgResponseTimeMs int64      `json:"avgResponseTimeMs"`
	UsageByDay        []DayCount `json:"usageByDay"`
}

// DayCount is the number of events on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// Zero returns metrics with every counter at zero and seven empty days
// ending on now's UTC day.
func Zero(now time.Time) Metrics {
	days := make([]DayCount, Days)
	for i, start := range dayStarts(now) {
		days[i] = DayCount{Date: start.Format(DateLayout)}
	}
	return Metrics{UsageByDay: days}
}

// midnight returns the UTC start of t's day.
func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayStarts returns the UTC midnights of the last Days days, oldest first.
func dayStarts(now time.Time) []time.Time {
	today := midnight(now)
	starts := make([]time.Time, Days)
	for i := range starts {
		starts[i] = today.AddDate(0, 0, i-(Days-1))
	}
	return starts
}

// dayIndex returns the UsageByDay slot of t, or -1 when t falls outside the
// window.
func dayIndex(starts []time.Time, t time.Time) int {
	if t.Before(starts[0]) {
		return -1
	}
	i := int(t.Sub(starts[0]) / (24 * time.Hour))
	if i >= len(starts) {
		return -1
	}
	return i
}

// successRate is the percentage of successful events with one decimal,
// rounded half away from zero.
func successRate(s *usage.Stats) float64 {
	if s.Total == 0 {
		return 0
	}
	return math.Round(float64(s.Successful)*1000/float64(s.Total)) / 10
}

// avgResponseTime is the mean response time rounded to the nearest
// millisecond.
func avgResponseTime(s *usage.Stats) int64 {
	if s.Timed == 0 {
		return 0
	}
	return int64(math.Round(float64(s.TotalResponseMs) / float64(s.Timed)))
}

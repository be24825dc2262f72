package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"tollgate-hq/tollgate/pkg/usage"
)

// CSVExporter exports usage events as CSV.
type CSVExporter struct {
	// IncludeHeader writes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{"id", "key_id", "sequence", "timestamp", "response_time_ms", "success"}

// Export implements usage.Exporter.
func (e *CSVExporter) Export(ctx context.Context, events []*usage.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return usage.NewExportError("csv", len(events), err)
		}
	}

	for i, ev := range events {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return usage.NewExportError("csv", len(events), err)
			}
		}
		if err := writer.Write(eventToRow(ev)); err != nil {
			return usage.NewExportError("csv", len(events), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return usage.NewExportError("csv", len(events), err)
	}
	return nil
}

func eventToRow(ev *usage.Event) []string {
	responseTime := ""
	if ev.ResponseTimeMs != nil {
		responseTime = strconv.FormatInt(*ev.ResponseTimeMs, 10)
	}
	return []string{
		ev.ID,
		ev.KeyID,
		strconv.FormatInt(ev.Sequence, 10),
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		responseTime,
		strconv.FormatBool(ev.Success),
	}
}

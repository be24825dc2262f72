package export

import (
	"context"
	"encoding/json"
	"io"

	"tollgate-hq/tollgate/pkg/usage"
)

// JSONExporter exports usage events as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export implements usage.Exporter.
func (e *JSONExporter) Export(ctx context.Context, events []*usage.Event, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return usage.NewExportError("json", len(events), err)
	}
	if events == nil {
		events = []*usage.Event{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(events); err != nil {
		return usage.NewExportError("json", len(events), err)
	}
	return nil
}

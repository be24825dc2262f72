package handlers

import "net/http"

// getMetrics never fails: the aggregator degrades to zeroed metrics.
func (h *Handlers) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Compute(r.Context(), h.now()))
}

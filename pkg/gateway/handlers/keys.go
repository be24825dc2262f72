package handlers

import (
	"net/http"
)

func (h *Handlers) createKey(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	key, err := h.keys.Create(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to create API key")
		return
	}
	writeJSON(w, http.StatusCreated, newKeyResponse(key))
}

func (h *Handlers) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to list API keys")
		return
	}

	usage := h.metrics.KeyUsage(r.Context())
	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		resp := newKeyResponse(k.Masked())
		actual := usage[k.ID]
		resp.ActualUsage = &actual
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to get API key")
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(key.Masked()))
}

func (h *Handlers) revealKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Reveal(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to reveal API key")
		return
	}
	writeJSON(w, http.StatusOK, RevealResponse{ID: key.ID, Secret: key.Secret})
}

func (h *Handlers) updateKey(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	key, err := h.keys.Update(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to update API key")
		return
	}
	writeJSON(w, http.StatusOK, newKeyResponse(key.Masked()))
}

func (h *Handlers) deleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := h.keys.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, false, "Failed to delete API key")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, msgKeyNotFound)
		return
	}

	h.quota.Forget(id)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "API key deleted successfully"})
}

package handlers

import (
	"net/http"
)

// PingResponse is the response for the ping endpoint
type PingResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// HandlePing handles the /api/ping endpoint
func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, http.StatusOK, PingResponse{
		Status:   "ok",
		Sessions: h.sessions.Len(),
	})
}

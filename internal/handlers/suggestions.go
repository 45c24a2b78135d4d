package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"predictionclub/internal/logger"
)

// SuggestionRequest carries a topic idea to analyze
type SuggestionRequest struct {
	Text string `json:"text"`
}

// SuggestionResponse is the moderation commentary; Available is false when
// the analysis could not be produced
type SuggestionResponse struct {
	Commentary string `json:"commentary,omitempty"`
	Available  bool   `json:"available"`
}

// HandleSuggestions handles POST /api/suggestions
func (h *Handler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	_, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	var req SuggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		logger.Debug(key, "suggestions_invalid_body", "")
		respondWithError(w, "Text is required", http.StatusBadRequest)
		return
	}

	commentary, ok := h.suggester.Analyze(r.Context(), req.Text)
	respondJSON(w, http.StatusOK, SuggestionResponse{Commentary: commentary, Available: ok})
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"predictionclub/internal/logger"
	"predictionclub/internal/views"
)

// PlacePredictionRequest is the request body for placing a prediction
type PlacePredictionRequest struct {
	TopicID string `json:"topic_id"`
	Value   string `json:"value"`
	Amount  int64  `json:"amount"`
}

// HandlePredictions handles POST /api/predictions
func (h *Handler) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	var req PlacePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(key, "predictions_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid := false
	for _, opt := range views.PredictionOptions {
		if req.Value == opt {
			valid = true
		}
	}
	if !valid {
		respondWithError(w, "Invalid value: must be 'Yes' or 'No'", http.StatusBadRequest)
		return
	}

	if err := s.PlaceWager(r.Context(), req.TopicID, req.Value, req.Amount); err != nil {
		logger.Debug(key, "predictions_rejected", fmt.Sprintf("topic_id=%s error=%s", req.TopicID, err.Error()))
		respondActionError(w, err)
		return
	}
	h.respondState(w, s, http.StatusCreated)
}

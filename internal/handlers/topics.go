package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"predictionclub/internal/logger"
	"predictionclub/internal/models"
	"predictionclub/internal/store"
	"predictionclub/internal/views"
)

// CreateTopicRequest is the request body for creating a topic
type CreateTopicRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	EndTime     string `json:"end_time"`
	Image       string `json:"image"`
}

// ValidationResponse lists form problems
type ValidationResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems"`
}

// HandleTopics handles POST /api/topics
func (h *Handler) HandleTopics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	var req CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(key, "topics_create_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	draft := store.TopicDraft{
		Title:       req.Title,
		Description: req.Description,
		Image:       strings.TrimSpace(req.Image),
	}
	var problems []string
	if req.Category != "" {
		category, ok := models.ParseCategory(req.Category)
		if !ok {
			problems = append(problems, "Pick one of the listed categories.")
		}
		draft.Category = category
	}
	if req.EndTime != "" {
		endTime, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			logger.Debug(key, "topics_create_invalid_end_time", "end_time="+req.EndTime)
			respondWithError(w, "Invalid end_time format, use RFC3339", http.StatusBadRequest)
			return
		}
		draft.EndTime = endTime
	}
	problems = append(problems, views.ValidateDraft(draft, h.now())...)
	if len(problems) > 0 {
		logger.Debug(key, "topics_create_validation_failed", strings.Join(problems, " "))
		respondJSON(w, http.StatusBadRequest, ValidationResponse{Error: "Invalid topic", Problems: problems})
		return
	}

	topic, err := s.CreateTopic(r.Context(), draft)
	if err != nil {
		respondActionError(w, err)
		return
	}

	logger.Debug(key, "topics_create_success", fmt.Sprintf("topic_id=%s", topic.ID))
	respondJSON(w, http.StatusCreated, topic)
}

// HandleTopic handles GET /api/topics/{id}
func (h *Handler) HandleTopic(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, rest := pathID(r.URL.Path, "/topics/")
	if id == "" || rest != "" {
		respondWithError(w, "Not found", http.StatusNotFound)
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	detail, ok := views.TopicDetail(s.Snapshot(), id)
	if !ok {
		logger.Debug(key, "topic_not_found", "topic_id="+id)
		respondWithError(w, "Topic not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

package handlers

import (
	"fmt"
	"net/http"

	"predictionclub/internal/logger"
	"predictionclub/internal/views"
)

// HandleState handles GET /api/state
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s, _, ok := h.sessionStore(w, r)
	if !ok {
		return
	}
	h.respondState(w, s, http.StatusOK)
}

// HandleFeed handles GET /api/feed; ?all=1 expands the list
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	all := r.URL.Query().Get("all")
	feed := views.Feed(s.Snapshot(), all == "1" || all == "true")
	logger.Debug(key, "feed_success", fmt.Sprintf("shown=%d total=%d", len(feed.Topics), feed.Total))
	respondJSON(w, http.StatusOK, feed)
}

// HandleProfile handles GET /api/profile
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	profile, ok := views.Profile(s.Snapshot())
	if !ok {
		logger.Debug(key, "profile_unauthorized", "")
		respondWithError(w, "Please sign in first.", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// HandleRewards handles GET /api/rewards
func (h *Handler) HandleRewards(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s, _, ok := h.sessionStore(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, views.Rewards(s.Snapshot()))
}

// HandleRedeem handles POST /api/rewards/{id}/redeem
func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	rewardID, rest := pathID(r.URL.Path, "/rewards/")
	if rewardID == "" || rest != "redeem" {
		respondWithError(w, "Not found", http.StatusNotFound)
		return
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return
	}

	if err := s.RedeemReward(rewardID); err != nil {
		logger.Debug(key, "redeem_rejected", "reward_id="+rewardID+" error="+err.Error())
		respondActionError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

// HandleNotification handles DELETE /api/notifications/{id}
func (h *Handler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	id, _ := pathID(r.URL.Path, "/notifications/")
	s, _, ok := h.sessionStore(w, r)
	if !ok {
		return
	}
	if !s.Dismiss(id) {
		respondWithError(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh handles POST /api/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s, _, ok := h.sessionStore(w, r)
	if !ok {
		return
	}
	s.Refresh(r.Context())
	h.respondState(w, s, http.StatusOK)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"predictionclub/internal/logger"
	"predictionclub/internal/store"
)

// CredentialsRequest is the body of sign-in, sign-up and demo login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) credentials(w http.ResponseWriter, r *http.Request) (*store.Store, CredentialsRequest, bool) {
	var req CredentialsRequest
	if !requireMethod(w, r, http.MethodPost) {
		return nil, req, false
	}
	s, key, ok := h.sessionStore(w, r)
	if !ok {
		return nil, req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug(key, "auth_invalid_body", "error="+err.Error())
		respondWithError(w, "Invalid request body", http.StatusBadRequest)
		return nil, req, false
	}
	return s, req, true
}

// HandleSignIn handles POST /api/auth/signin
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	s, req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if err := s.SignIn(r.Context(), req.Email, req.Password); err != nil {
		respondActionError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

// HandleSignUp handles POST /api/auth/signup. The user stays signed out when
// the backend asks for email confirmation.
func (h *Handler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	s, req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if err := s.SignUp(r.Context(), req.Email, req.Password); err != nil {
		respondActionError(w, err)
		return
	}
	h.respondState(w, s, http.StatusCreated)
}

// HandleDemo handles POST /api/auth/demo, a local sign-in without a password
func (h *Handler) HandleDemo(w http.ResponseWriter, r *http.Request) {
	s, req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if err := s.Login(req.Email); err != nil {
		respondActionError(w, err)
		return
	}
	h.respondState(w, s, http.StatusOK)
}

// HandleSignOut handles POST /api/auth/signout
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s, _, ok := h.sessionStore(w, r)
	if !ok {
		return
	}
	s.Logout(r.Context())
	h.respondState(w, s, http.StatusOK)
}

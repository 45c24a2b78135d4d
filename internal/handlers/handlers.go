package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"predictionclub/internal/auth"
	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/metrics"
	"predictionclub/internal/registry"
	"predictionclub/internal/store"
	"predictionclub/internal/suggest"
	"predictionclub/internal/views"
)

// Handler serves the JSON API over the session registry
type Handler struct {
	sessions  *registry.Registry
	suggester *suggest.Service
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates the API handlers. suggester and m may be nil.
func New(sessions *registry.Registry, suggester *suggest.Service, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions:  sessions,
		suggester: suggester,
		metrics:   m,
		now:       time.Now,
	}
}

// StateResponse is the full client state plus the navigation bar
type StateResponse struct {
	Nav views.Nav `json:"nav"`
	store.State
}

// API returns the /api routes with the /api prefix stripped
func (h *Handler) API() http.Handler {
	apiMux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/ping":           h.HandlePing,
		"/state":          h.HandleState,
		"/feed":           h.HandleFeed,
		"/topics":         h.HandleTopics,
		"/topics/":        h.HandleTopic,
		"/profile":        h.HandleProfile,
		"/rewards":        h.HandleRewards,
		"/rewards/":       h.HandleRedeem,
		"/predictions":    h.HandlePredictions,
		"/notifications/": h.HandleNotification,
		"/suggestions":    h.HandleSuggestions,
		"/refresh":        h.HandleRefresh,
		"/auth/signin":    h.HandleSignIn,
		"/auth/signup":    h.HandleSignUp,
		"/auth/signout":   h.HandleSignOut,
		"/auth/demo":      h.HandleDemo,
	}
	for path, fn := range routes {
		var handler http.Handler = fn
		if h.metrics != nil {
			handler = h.metrics.InstrumentHandler("/api"+path, handler)
		}
		apiMux.Handle(path, handler)
	}
	return apiMux
}

// Router assembles the public HTTP surface: the session-scoped API, metrics
// and static files, behind CORS for the browser front-end
func Router(h *Handler, sessions *auth.Manager, m *metrics.Metrics, origins []string, staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", sessions.Middleware(http.StripPrefix("/api", h.API())))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", auth.InitDataHeader},
		AllowCredentials: true,
	}).Handler(mux)
}

// sessionStore returns the store of the calling client
func (h *Handler) sessionStore(w http.ResponseWriter, r *http.Request) (*store.Store, string, bool) {
	key, ok := auth.GetSessionKeyFromContext(r.Context())
	if !ok {
		logger.Debug("", "session_missing", "path="+r.URL.Path)
		respondWithError(w, "Unauthorized: session not in context", http.StatusUnauthorized)
		return nil, "", false
	}
	s, err := h.sessions.Get(key)
	if err != nil {
		logger.Error(key, "session_open", err)
		respondWithError(w, "Failed to open session", http.StatusServiceUnavailable)
		return nil, "", false
	}
	return s, key, true
}

func (h *Handler) respondState(w http.ResponseWriter, s *store.Store, status int) {
	st := s.Snapshot()
	respondJSON(w, status, StateResponse{Nav: views.NavBar(st), State: st})
}

// respondActionError maps a store error to a status code
func respondActionError(w http.ResponseWriter, err error) {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		status := http.StatusBadRequest
		switch ve {
		case store.ErrNotAuthenticated:
			status = http.StatusUnauthorized
		case store.ErrTopicNotFound, store.ErrRewardNotFound:
			status = http.StatusNotFound
		case store.ErrActionInFlight, store.ErrSessionChanged:
			status = http.StatusConflict
		case store.ErrInsufficientPoints:
			status = http.StatusPaymentRequired
		}
		respondWithError(w, ve.Message, status)
		return
	}

	var ae *gateway.AuthError
	switch {
	case errors.As(err, &ae):
		respondWithError(w, ae.UserMessage(), http.StatusUnauthorized)
	case gateway.IsBackendError(err):
		respondWithError(w, "Backend unavailable", http.StatusBadGateway)
	default:
		respondWithError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		logger.Debug("", "invalid_method", "path="+r.URL.Path+" method="+r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// pathID returns the path segment after prefix, up to the next slash
func pathID(path, prefix string) (id, rest string) {
	tail := strings.TrimPrefix(path, prefix)
	id, rest, _ = strings.Cut(tail, "/")
	return id, rest
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

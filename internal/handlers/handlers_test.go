package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"predictionclub/internal/auth"
	"predictionclub/internal/config"
	"predictionclub/internal/gateway"
	"predictionclub/internal/metrics"
	"predictionclub/internal/registry"
	"predictionclub/internal/storage"
	"predictionclub/internal/store"
	"predictionclub/internal/suggest"
)

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := storage.Open(":memory:", "test-secret")
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Seed(context.Background()); err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	rewards, err := (&config.Config{}).Rewards()
	if err != nil {
		t.Fatalf("Failed to load rewards: %v", err)
	}

	sessions := registry.New(context.Background(), func(string) (gateway.Gateway, error) {
		return db.NewGateway(), nil
	}, registry.WithStoreOptions(store.WithRewards(rewards)))
	t.Cleanup(sessions.Close)

	return New(sessions, nil, nil)
}

// call runs one API request as session key
func call(t *testing.T, h *Handler, key, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req = req.WithContext(auth.ContextWithSessionKey(req.Context(), key))
	}
	rr := httptest.NewRecorder()
	h.API().ServeHTTP(rr, req)
	return rr
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) StateResponse {
	t.Helper()
	var st StateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return st
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	return body["error"]
}

func TestHandlePing(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "", http.MethodGet, "/ping", "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var response PingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("Expected status 'ok', got '%s'", response.Status)
	}
}

func TestHandleStateWithoutSession(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "", http.MethodGet, "/state", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestHandleStateAnonymous(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "web:a", http.MethodGet, "/state", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	st := decodeState(t, rr)
	if st.User != nil || st.Nav.LoggedIn {
		t.Error("Expected an anonymous state")
	}
	if len(st.Topics) != 4 || len(st.Rewards) != 3 {
		t.Errorf("Expected 4 topics and 3 rewards, got %d and %d", len(st.Topics), len(st.Rewards))
	}
}

func TestHandleFeed(t *testing.T) {
	h := setupTestHandler(t)
	tests := []struct {
		path    string
		heading string
		count   int
	}{
		{path: "/feed", heading: "Active Markets", count: 3},
		{path: "/feed?all=1", heading: "All Markets", count: 4},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := call(t, h, "web:a", http.MethodGet, tt.path, "")
			var feed struct {
				Heading string            `json:"heading"`
				Topics  []json.RawMessage `json:"topics"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &feed); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if feed.Heading != tt.heading || len(feed.Topics) != tt.count {
				t.Errorf("Expected %q with %d topics, got %q with %d", tt.heading, tt.count, feed.Heading, len(feed.Topics))
			}
		})
	}
}

func TestHandlePredictionsUnauthenticated(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "web:a", http.MethodPost, "/predictions", `{"topic_id":"t1","value":"Yes","amount":50}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if msg := errorMessage(t, rr); msg != store.ErrNotAuthenticated.Message {
		t.Errorf("Expected %q, got %q", store.ErrNotAuthenticated.Message, msg)
	}

	st := decodeState(t, call(t, h, "web:a", http.MethodGet, "/state", ""))
	if len(st.Notifications) != 1 || st.Notifications[0].Message != "Please sign in to place a prediction." {
		t.Errorf("Expected the sign-in notification, got %+v", st.Notifications)
	}
}

func TestHandlePredictionsSignedIn(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "web:s", http.MethodPost, "/auth/signup", `{"email":"casey@school.edu","password":"hunter22"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if st := decodeState(t, rr); st.User == nil || st.User.Points != 500 {
		t.Fatalf("Expected a signed-in user with 500 points, got %+v", st.User)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "bad value", body: `{"topic_id":"t1","value":"Maybe","amount":50}`, status: http.StatusBadRequest},
		{name: "bad json", body: `{"topic_id"`, status: http.StatusBadRequest},
		{name: "unknown topic", body: `{"topic_id":"t9","value":"Yes","amount":50}`, status: http.StatusNotFound},
		{name: "too much", body: `{"topic_id":"t1","value":"Yes","amount":900}`, status: http.StatusPaymentRequired},
		{name: "placed", body: `{"topic_id":"t2","value":"No","amount":120}`, status: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, h, "web:s", http.MethodPost, "/predictions", tt.body)
			if rr.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}

	rr = call(t, h, "web:s", http.MethodPost, "/refresh", "")
	st := decodeState(t, rr)
	if st.User.Points != 380 || len(st.Predictions) != 1 {
		t.Errorf("Expected 380 points and one prediction, got %d and %d", st.User.Points, len(st.Predictions))
	}
}

func TestHandleCreateTopic(t *testing.T) {
	h := setupTestHandler(t)
	rr := call(t, h, "web:c", http.MethodPost, "/topics", `{"title":"Fire drill?","description":"During finals","end_time":"`+time.Now().Add(24*time.Hour).Format(time.RFC3339)+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d before sign-in, got %d", http.StatusUnauthorized, rr.Code)
	}

	call(t, h, "web:c", http.MethodPost, "/auth/signup", `{"email":"drew@school.edu","password":"hunter22"}`)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "invalid body", body: `{"title"`, status: http.StatusBadRequest},
		{name: "invalid end time", body: `{"title":"t","description":"d","end_time":"tomorrow"}`, status: http.StatusBadRequest},
		{name: "past end time", body: `{"title":"t","description":"d","end_time":"2020-12-31T00:00:00Z"}`, status: http.StatusBadRequest},
		{name: "unknown category", body: `{"title":"t","description":"d","category":"gossip","end_time":"` + time.Now().Add(time.Hour).Format(time.RFC3339) + `"}`, status: http.StatusBadRequest},
		{name: "created", body: `{"title":"Fire drill during finals?","description":"Any alarm","category":"campus","end_time":"` + time.Now().Add(48*time.Hour).Format(time.RFC3339) + `"}`, status: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := call(t, h, "web:c", http.MethodPost, "/topics", tt.body)
			if rr.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}

	st := decodeState(t, call(t, h, "web:c", http.MethodGet, "/state", ""))
	if len(st.Topics) != 5 || st.Topics[0].Title != "Fire drill during finals?" {
		t.Errorf("Expected the new topic first, got %d topics", len(st.Topics))
	}
	if st.Topics[0].Category != "Campus Life" {
		t.Errorf("Expected category Campus Life, got %s", st.Topics[0].Category)
	}
}

func TestHandleTopic(t *testing.T) {
	h := setupTestHandler(t)
	if rr := call(t, h, "web:a", http.MethodGet, "/topics/t1", ""); rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr := call(t, h, "web:a", http.MethodGet, "/topics/missing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
	if rr := call(t, h, "web:a", http.MethodPost, "/topics/t1", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestHandleDemoAndRedeem(t *testing.T) {
	h := setupTestHandler(t)
	if rr := call(t, h, "web:d", http.MethodPost, "/auth/demo", `{"email":"nope"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d for a bad email, got %d", http.StatusBadRequest, rr.Code)
	}

	rr := call(t, h, "web:d", http.MethodPost, "/auth/demo", `{"email":"jo@school.edu"}`)
	st := decodeState(t, rr)
	if st.User == nil || !st.User.Demo || st.User.Points != 500 {
		t.Fatalf("Expected a demo user with 500 points, got %+v", st.User)
	}

	// 500 points cannot buy the 1000-point card
	if rr := call(t, h, "web:d", http.MethodPost, "/rewards/r1/redeem", ""); rr.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status %d, got %d", http.StatusPaymentRequired, rr.Code)
	}
	if rr := call(t, h, "web:d", http.MethodPost, "/rewards/r9/redeem", ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}

	// demo wagers are applied locally even though the backend refuses them
	if rr := call(t, h, "web:d", http.MethodPost, "/predictions", `{"topic_id":"t1","value":"Yes","amount":50}`); rr.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	rr = call(t, h, "web:d", http.MethodPost, "/auth/signout", "")
	if st := decodeState(t, rr); st.User != nil {
		t.Error("Expected no user after sign-out")
	}
}

func TestHandleNotification(t *testing.T) {
	h := setupTestHandler(t)
	call(t, h, "web:n", http.MethodPost, "/predictions", `{"topic_id":"t1","value":"Yes","amount":50}`)
	st := decodeState(t, call(t, h, "web:n", http.MethodGet, "/state", ""))
	if len(st.Notifications) != 1 {
		t.Fatalf("Expected one notification, got %d", len(st.Notifications))
	}

	path := "/notifications/" + st.Notifications[0].ID
	if rr := call(t, h, "web:n", http.MethodDelete, path, ""); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if rr := call(t, h, "web:n", http.MethodDelete, path, ""); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestHandleProfile(t *testing.T) {
	h := setupTestHandler(t)
	if rr := call(t, h, "web:p", http.MethodGet, "/profile", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	call(t, h, "web:p", http.MethodPost, "/auth/demo", `{"email":"pat@school.edu"}`)
	rr := call(t, h, "web:p", http.MethodGet, "/profile", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Welcome Bonus") {
		t.Errorf("Expected a profile with the welcome bonus, got %d: %s", rr.Code, rr.Body.String())
	}
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "Appropriate. Title: Snow Day Friday?", nil
}

func TestHandleSuggestions(t *testing.T) {
	h := setupTestHandler(t)

	rr := call(t, h, "web:g", http.MethodPost, "/suggestions", `{"text":"snow day"}`)
	var resp SuggestionResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if rr.Code != http.StatusOK || resp.Available {
		t.Errorf("Expected an unavailable analysis without a provider, got %d %+v", rr.Code, resp)
	}

	h.suggester = suggest.New(stubGenerator{})
	rr = call(t, h, "web:g", http.MethodPost, "/suggestions", `{"text":"snow day"}`)
	resp = SuggestionResponse{}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Available || resp.Commentary == "" {
		t.Errorf("Expected commentary, got %+v", resp)
	}

	if rr := call(t, h, "web:g", http.MethodPost, "/suggestions", `{"text":"  "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestRouter(t *testing.T) {
	h := setupTestHandler(t)
	m := metrics.New()
	h.metrics = m
	router := Router(h, auth.NewManager("test-secret", ""), m, []string{"*"}, "")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if len(rr.Result().Cookies()) != 1 {
		t.Error("Expected a session cookie")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `path="/api/state"`) {
		t.Errorf("Expected request metrics for /api/state, got:\n%s", rr.Body.String())
	}
}

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"predictionclub/internal/gateway"
)

func setupTestDB(t *testing.T) *DB {
	// Use in-memory database for tests
	db, err := Open(":memory:", "test-secret")
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func signUp(t *testing.T, g *Gateway, email string) *gateway.Session {
	t.Helper()
	s, err := g.SignUp(context.Background(), email, "hunter22", gateway.DefaultProfile(email))
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return s
}

func TestSignUpCreatesProfileAndWelcomeBonus(t *testing.T) {
	db := setupTestDB(t)
	g := db.NewGateway()
	ctx := context.Background()

	session := signUp(t, g, "Maya@WCHS.edu")
	if session == nil || session.User.ID == "" {
		t.Fatal("Expected session with user id")
	}
	if session.User.Email != "maya@wchs.edu" {
		t.Errorf("Expected normalized email, got %s", session.User.Email)
	}

	profiles, err := g.Query(ctx, gateway.CollectionProfiles, gateway.Filter{"id": session.User.ID}, gateway.Order{})
	if err != nil {
		t.Fatalf("Query profiles failed: %v", err)
	}
	if len(profiles) != 1 || profiles[0]["name"] != "Maya" {
		t.Errorf("Expected profile named Maya, got %v", profiles)
	}

	points, err := g.Query(ctx, gateway.CollectionPoints, gateway.Filter{"user_id": session.User.ID}, gateway.Order{})
	if err != nil {
		t.Fatalf("Query points failed: %v", err)
	}
	if len(points) != 1 || points[0]["current_points"] != int64(500) {
		t.Errorf("Expected 500 welcome points, got %v", points)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	signUp(t, db.NewGateway(), "dup@wchs.edu")

	_, err := db.NewGateway().SignUp(context.Background(), "dup@wchs.edu", "hunter22", gateway.ProfileDefaults{})
	var ae *gateway.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if ae.UserMessage() != "User already registered" {
		t.Errorf("Unexpected message: %s", ae.UserMessage())
	}
}

func TestSignInAndAuthEvents(t *testing.T) {
	db := setupTestDB(t)
	signUp(t, db.NewGateway(), "sam@wchs.edu")

	g := db.NewGateway()
	var events []gateway.AuthEvent
	unsubscribe := g.OnAuthChange(func(e gateway.AuthEvent, _ *gateway.Session) {
		events = append(events, e)
	})
	defer unsubscribe()

	ctx := context.Background()
	if _, err := g.SignIn(ctx, "sam@wchs.edu", "wrong-password"); !errors.Is(err, gateway.ErrInvalidCredentials) {
		t.Fatalf("Expected invalid credentials, got %v", err)
	}
	if _, err := g.SignIn(ctx, "nobody@wchs.edu", "hunter22"); !errors.Is(err, gateway.ErrInvalidCredentials) {
		t.Fatalf("Expected invalid credentials for unknown user, got %v", err)
	}

	session, err := g.SignIn(ctx, "sam@wchs.edu", "hunter22")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	ident, err := db.VerifyToken(session.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if ident.ID != session.User.ID {
		t.Errorf("Token subject %s does not match user %s", ident.ID, session.User.ID)
	}

	current, err := g.GetSession(ctx)
	if err != nil || current == nil {
		t.Fatalf("Expected live session, got %v %v", current, err)
	}

	if err := g.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	current, _ = g.GetSession(ctx)
	if current != nil {
		t.Error("Expected no session after sign out")
	}

	if len(events) != 2 || events[0] != gateway.EventSignedIn || events[1] != gateway.EventSignedOut {
		t.Errorf("Unexpected events: %v", events)
	}
}

func TestGetSessionRefreshesExpiredToken(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	g := db.NewGateway()
	first := signUp(t, g, "lee@wchs.edu")

	now = now.Add(2 * AccessTokenTTL)
	refreshed, err := g.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if refreshed == nil {
		t.Fatal("Expected refreshed session")
	}
	if !refreshed.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("Expected later expiry, got %v <= %v", refreshed.ExpiresAt, first.ExpiresAt)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	added, err := db.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if added != len(SampleTopics) {
		t.Errorf("Expected %d topics, got %d", len(SampleTopics), added)
	}
	added, err = db.Seed(ctx)
	if err != nil || added != 0 {
		t.Errorf("Expected second seed to add nothing, got %d %v", added, err)
	}

	rows, err := db.NewGateway().Query(ctx, gateway.CollectionTopics, nil, gateway.NewestFirst)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 4 || rows[0]["id"] != "t1" || rows[3]["id"] != "t4" {
		t.Errorf("Unexpected topic order: %v", rows)
	}
}

func TestQueryUnknownCollection(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.NewGateway().Query(context.Background(), "leaderboard", nil, gateway.Order{})
	var be *gateway.BackendError
	if !errors.As(err, &be) || be.Collection != "leaderboard" {
		t.Fatalf("Expected BackendError for leaderboard, got %v", err)
	}
}

func TestInsertRequiresSession(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.NewGateway().Insert(context.Background(), gateway.CollectionTopics, gateway.Row{"title": "x"})
	if !errors.Is(err, gateway.ErrNotSignedIn) {
		t.Fatalf("Expected ErrNotSignedIn, got %v", err)
	}
}

func TestInsertTopicFillsDefaults(t *testing.T) {
	db := setupTestDB(t)
	g := db.NewGateway()
	session := signUp(t, g, "ava@wchs.edu")

	row, err := g.Insert(context.Background(), gateway.CollectionTopics, gateway.Row{
		"title":       "Fire drill during finals?",
		"description": "Will there be a fire drill during finals week?",
		"category":    "Campus Life",
		"end_time":    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if row["id"] == "" || row["status"] != "active" || row["created_by"] != session.User.ID {
		t.Errorf("Unexpected defaults: %v", row)
	}
	if row["pool_size"] != int64(0) || row["participant_count"] != int64(0) {
		t.Errorf("Expected empty pool, got %v", row)
	}
	if row["end_time"] != "2026-06-01T00:00:00Z" {
		t.Errorf("Unexpected end_time %v", row["end_time"])
	}
}

func TestInsertPredictionUpdatesPoolAndPoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	g := db.NewGateway()
	session := signUp(t, g, "kai@wchs.edu")

	row, err := g.Insert(ctx, gateway.CollectionPredictions, gateway.Row{
		"user_id":          session.User.ID,
		"topic_id":         "t2",
		"prediction_value": "Yes",
		"wager":            int64(120),
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if row["is_correct"] != nil {
		t.Errorf("Expected unsettled prediction, got %v", row["is_correct"])
	}

	points, _ := g.Query(ctx, gateway.CollectionPoints, gateway.Filter{"user_id": session.User.ID}, gateway.Order{})
	if points[0]["current_points"] != int64(380) {
		t.Errorf("Expected 380 points, got %v", points[0]["current_points"])
	}
	topics, _ := g.Query(ctx, gateway.CollectionTopics, gateway.Filter{"id": "t2"}, gateway.Order{})
	if topics[0]["pool_size"] != int64(28120) || topics[0]["participant_count"] != int64(857) {
		t.Errorf("Unexpected pool after wager: %v", topics[0])
	}

	if err := db.SettlePrediction(ctx, row["id"].(string), true); err != nil {
		t.Fatalf("SettlePrediction failed: %v", err)
	}
	preds, _ := g.Query(ctx, gateway.CollectionPredictions, gateway.Filter{"user_id": session.User.ID}, gateway.Order{})
	if preds[0]["is_correct"] != true {
		t.Errorf("Expected settled prediction, got %v", preds[0]["is_correct"])
	}
}

func TestInsertPredictionRejections(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if _, err := db.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := db.SetTopicStatus(ctx, "t4", "closed"); err != nil {
		t.Fatalf("SetTopicStatus failed: %v", err)
	}
	g := db.NewGateway()
	session := signUp(t, g, "noor@wchs.edu")

	tests := []struct {
		name     string
		row      gateway.Row
		expected error
	}{
		{
			name:     "insufficient points",
			row:      gateway.Row{"topic_id": "t1", "prediction_value": "Yes", "wager": int64(501)},
			expected: ErrInsufficientPoints,
		},
		{
			name:     "closed topic",
			row:      gateway.Row{"topic_id": "t4", "prediction_value": "No", "wager": int64(10)},
			expected: ErrTopicNotOpen,
		},
		{
			name:     "missing topic",
			row:      gateway.Row{"topic_id": "t9", "prediction_value": "No", "wager": int64(10)},
			expected: ErrTopicNotOpen,
		},
		{
			name:     "someone else's prediction",
			row:      gateway.Row{"user_id": "other", "topic_id": "t1", "prediction_value": "No", "wager": int64(10)},
			expected: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Insert(ctx, gateway.CollectionPredictions, tt.row)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
			if !gateway.IsBackendError(err) {
				t.Errorf("Expected BackendError, got %T", err)
			}
		})
	}

	points, _ := g.Query(ctx, gateway.CollectionPoints, gateway.Filter{"user_id": session.User.ID}, gateway.Order{})
	if points[0]["current_points"] != int64(500) {
		t.Errorf("Rejected wagers must not debit, got %v", points[0]["current_points"])
	}
}

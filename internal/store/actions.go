package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

const (
	msgSignInToPredict  = "Please sign in to place a prediction."
	msgPredictionFailed = "Prediction failed. Check points or network."
	msgTopicFailed      = "Failed to create topic. Please try again."
	msgCheckEmail       = "Registration successful! Check your email."
)

// PlaceWager stakes amount points on value for a topic.
//
// The local state is updated once the backend call returns, whether or not it
// succeeded, unless the store was built WithStrictWagers(true).
func (s *Store) PlaceWager(ctx context.Context, topicID, value string, amount int64) error {
	s.mu.Lock()
	user := s.state.User
	if user == nil {
		err := s.rejectLocked("place_wager", ErrNotAuthenticated, msgSignInToPredict)
		s.mu.Unlock()
		return err
	}
	if amount <= 0 {
		err := s.rejectLocked("place_wager", ErrInvalidWager, "")
		s.mu.Unlock()
		return err
	}
	if amount > user.Points {
		err := s.rejectLocked("place_wager", ErrInsufficientPoints, "")
		s.mu.Unlock()
		return err
	}
	if s.topicIndexLocked(topicID) < 0 {
		err := s.rejectLocked("place_wager", ErrTopicNotFound, "")
		s.mu.Unlock()
		return err
	}
	uid := user.ID
	key := "wager:" + uid
	if !s.acquireLocked(key) {
		err := s.rejectLocked("place_wager", ErrActionInFlight, "")
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	defer s.release(key)

	logger.Debug(uid, "place_wager", fmt.Sprintf("topic_id=%s value=%s amount=%d", topicID, value, amount))

	row, err := s.gw.Insert(ctx, gateway.CollectionPredictions, gateway.Row{
		"user_id":          uid,
		"topic_id":         topicID,
		"prediction_value": value,
		"wager":            amount,
	})
	if err != nil {
		logger.Error(uid, "place_wager", err)
		s.backendFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil && s.strict {
		s.notifyLocked(models.NotificationError, msgPredictionFailed)
		s.count("place_wager", "failed")
		return fmt.Errorf("failed to place wager: %w", err)
	}
	if s.state.User == nil || s.state.User.ID != uid {
		s.count("place_wager", "dropped")
		return ErrSessionChanged
	}
	// the balance may have been spent while the insert was in flight
	if s.state.User.Points < amount {
		return s.rejectLocked("place_wager", ErrInsufficientPoints, "")
	}

	id := ""
	if row != nil {
		if v, ok := row["id"].(string); ok {
			id = v
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := s.clock.Now()

	u := *s.state.User
	u.Points -= amount
	s.state.User = &u

	s.state.Predictions = append([]models.Prediction{{
		ID:           id,
		UserID:       uid,
		TopicID:      topicID,
		Value:        value,
		Wager:        amount,
		PotentialWin: PotentialWin(amount),
		Status:       models.PredictionPending,
		CreatedAt:    now,
	}}, s.state.Predictions...)

	title := topicID
	if i := s.topicIndexLocked(topicID); i >= 0 {
		topics := append([]models.Topic(nil), s.state.Topics...)
		topics[i].Participants++
		topics[i].PoolSize += amount
		title = topics[i].Title
		s.state.Topics = topics
	}

	s.state.Transactions = append(s.state.Transactions, models.Transaction{
		ID:          uuid.NewString(),
		UserID:      uid,
		Kind:        models.TransactionPrediction,
		Amount:      -amount,
		Description: "Wager: " + title,
		CreatedAt:   now,
	})

	s.notifyLocked(models.NotificationSuccess, fmt.Sprintf("Prediction placed: %d points on %s!", amount, value))
	if err != nil {
		s.count("place_wager", "applied_after_failure")
	} else {
		s.count("place_wager", "ok")
	}
	return nil
}

func (s *Store) topicIndexLocked(id string) int {
	for i := range s.state.Topics {
		if s.state.Topics[i].ID == id {
			return i
		}
	}
	return -1
}

// TopicDraft is the user input for a new topic
type TopicDraft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    models.Category `json:"category"`
	EndTime     time.Time       `json:"end_time"`
	Image       string          `json:"image,omitempty"`
}

// CreateTopic inserts a new topic and prepends the stored row to the topic list.
// Nothing changes locally if the insert fails.
func (s *Store) CreateTopic(ctx context.Context, draft TopicDraft) (*models.Topic, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Category == "" {
		draft.Category = models.CategoryCustom
	}
	if draft.Image == "" {
		draft.Image = models.DefaultTopicImage
	}

	s.mu.Lock()
	user := s.state.User
	if user == nil {
		err := s.rejectLocked("create_topic", ErrNotAuthenticated, "")
		s.mu.Unlock()
		return nil, err
	}
	if draft.Title == "" || draft.Description == "" || !draft.Category.Valid() ||
		draft.EndTime.IsZero() || !draft.EndTime.After(s.clock.Now()) {
		err := s.rejectLocked("create_topic", ErrInvalidTopic, "")
		s.mu.Unlock()
		return nil, err
	}
	creator := *user
	key := "topic:" + creator.ID
	if !s.acquireLocked(key) {
		err := s.rejectLocked("create_topic", ErrActionInFlight, "")
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	defer s.release(key)

	row, err := s.gw.Insert(ctx, gateway.CollectionTopics, gateway.Row{
		"title":             draft.Title,
		"description":       draft.Description,
		"category":          string(draft.Category),
		"end_time":          draft.EndTime.UTC(),
		"image_url":         draft.Image,
		"created_by":        creator.ID,
		"status":            string(models.TopicStatusActive),
		"pool_size":         0,
		"participant_count": 0,
	})
	if err == nil {
		var topic models.Topic
		if topic, err = toTopic(row); err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return &topic, nil
			}
			s.upsertTopicLocked(topic)
			s.notifyLocked(models.NotificationSuccess, "Topic created successfully!")
			s.count("create_topic", "ok")
			s.mu.Unlock()

			logger.Debug(creator.ID, "create_topic", fmt.Sprintf("topic_id=%s title=%s", topic.ID, topic.Title))
			if s.onTopic != nil {
				s.onTopic(topic, creator)
			}
			return &topic, nil
		}
	}

	logger.Error(creator.ID, "create_topic", err)
	s.backendFailed(err)
	s.mu.Lock()
	s.notifyLocked(models.NotificationError, msgTopicFailed)
	s.count("create_topic", "failed")
	s.mu.Unlock()
	return nil, fmt.Errorf("failed to create topic: %w", err)
}

// RedeemReward spends points on a catalog reward. It is local only.
func (s *Store) RedeemReward(rewardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.User == nil {
		return s.rejectLocked("redeem_reward", ErrNotAuthenticated, "")
	}
	var reward *models.Reward
	for i := range s.state.Rewards {
		if s.state.Rewards[i].ID == rewardID {
			reward = &s.state.Rewards[i]
			break
		}
	}
	if reward == nil {
		return s.rejectLocked("redeem_reward", ErrRewardNotFound, "")
	}
	if s.state.User.Points < reward.Cost {
		return s.rejectLocked("redeem_reward", ErrInsufficientPoints, "")
	}

	now := s.clock.Now()
	u := *s.state.User
	u.Points -= reward.Cost
	s.state.User = &u

	s.state.Transactions = append(s.state.Transactions, models.Transaction{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		Kind:        models.TransactionRedeem,
		Amount:      -reward.Cost,
		Description: "Redeemed: " + reward.Name,
		CreatedAt:   now,
	})
	s.state.Redemptions = append(s.state.Redemptions, models.Redemption{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		RewardID:  reward.ID,
		Status:    models.RedemptionPending,
		CreatedAt: now,
	})
	s.notifyLocked(models.NotificationSuccess, "Redeemed "+reward.Name+"!")
	s.count("redeem_reward", "ok")
	logger.Debug(u.ID, "redeem_reward", fmt.Sprintf("reward_id=%s cost=%d", reward.ID, reward.Cost))
	return nil
}

// Login signs in a local demo user without touching the backend
func (s *Store) Login(email string) error {
	email = strings.TrimSpace(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !validEmail(email) {
		return s.rejectLocked("login", ErrInvalidEmail, "")
	}

	now := s.clock.Now()
	name := gateway.EmailLocalPart(email)
	user := &models.User{
		ID:       "demo-" + uuid.NewString(),
		Email:    email,
		Name:     name,
		Avatar:   gateway.AvatarURL(email),
		Points:   models.WelcomeBonus,
		Rank:     models.DefaultRank,
		JoinedAt: now,
		Demo:     true,
	}
	s.state.User = user
	s.state.Session = SessionAuthenticated
	s.state.Predictions = nil
	s.state.Transactions = []models.Transaction{{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Kind:        models.TransactionInitial,
		Amount:      models.WelcomeBonus,
		Description: "Welcome Bonus",
		CreatedAt:   now,
	}}
	s.notifyLocked(models.NotificationSuccess, "Welcome, "+name+"!")
	s.count("login", "ok")
	logger.Debug(user.ID, "demo_login", "email="+email)
	return nil
}

// Logout signs out of the backend and clears the user's state. A remote
// sign-out failure is only logged.
func (s *Store) Logout(ctx context.Context) {
	uid := s.UserID()
	if err := s.gw.SignOut(ctx); err != nil {
		logger.Error(uid, "logout", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = nil
	s.state.Predictions = nil
	s.state.Transactions = nil
	s.state.Session = SessionAnonymous
	s.count("logout", "ok")
	logger.Debug(uid, "logout", "")
}

// SignIn authenticates against the backend. The auth-change subscription
// loads the user.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.beginAuth("sign_in", email); err != nil {
		return err
	}
	session, err := s.gw.SignIn(ctx, email, password)
	return s.finishAuth(ctx, "sign_in", session, err)
}

// SignUp registers a new account with the default profile for email.
// With email confirmation enabled no session is returned and the user stays
// signed out.
func (s *Store) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := s.beginAuth("sign_up", email); err != nil {
		return err
	}
	session, err := s.gw.SignUp(ctx, email, password, gateway.DefaultProfile(email))
	if err == nil && session == nil {
		s.mu.Lock()
		s.notifyLocked(models.NotificationSuccess, msgCheckEmail)
		s.mu.Unlock()
	}
	return s.finishAuth(ctx, "sign_up", session, err)
}

func (s *Store) beginAuth(action, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validEmail(email) {
		return s.rejectLocked(action, ErrInvalidEmail, "")
	}
	if !s.acquireLocked("auth") {
		return s.rejectLocked(action, ErrActionInFlight, "")
	}
	s.authPending = true
	s.state.Session = SessionAuthenticating
	return nil
}

func (s *Store) finishAuth(ctx context.Context, action string, session *gateway.Session, err error) error {
	s.mu.Lock()
	delete(s.inflight, "auth")
	s.authPending = false
	s.settleSessionLocked()

	if err != nil {
		msg := err.Error()
		var ae *gateway.AuthError
		if errors.As(err, &ae) {
			msg = ae.UserMessage()
		}
		s.notifyLocked(models.NotificationError, msg)
		s.count(action, "failed")
		s.mu.Unlock()
		logger.Error("", action, err)
		return err
	}
	s.count(action, "ok")
	stale := session != nil && (s.state.User == nil || s.state.User.ID != session.User.ID)
	s.mu.Unlock()

	if stale {
		// the gateway did not announce the new session
		s.Refresh(ctx)
	}
	return nil
}

// settleSessionLocked leaves the authenticating state once no sign-in is pending
func (s *Store) settleSessionLocked() {
	if s.state.Session != SessionAuthenticating {
		return
	}
	if s.state.User != nil {
		s.state.Session = SessionAuthenticated
	} else {
		s.state.Session = SessionAnonymous
	}
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}

// Package store holds one client session's application state and the actions
// that change it. A Store is built explicitly and handed to its views; there is
// no package-level instance.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/metrics"
	"predictionclub/internal/models"
)

// DefaultNotificationTTL is how long a notification stays visible
const DefaultNotificationTTL = 4 * time.Second

// SessionState tracks authentication of the store's user
type SessionState string

const (
	SessionAnonymous      SessionState = "anonymous"
	SessionAuthenticating SessionState = "authenticating"
	SessionAuthenticated  SessionState = "authenticated"
)

// State is a snapshot of everything the views render
type State struct {
	Session       SessionState          `json:"session"`
	User          *models.User          `json:"user"`
	Topics        []models.Topic        `json:"topics"`
	Predictions   []models.Prediction   `json:"predictions"`
	Transactions  []models.Transaction  `json:"transactions"`
	Rewards       []models.Reward       `json:"rewards"`
	Redemptions   []models.Redemption   `json:"redemptions"`
	Notifications []models.Notification `json:"notifications"`
	Loading       bool                  `json:"loading"`
}

// TopicListener is told about topics created through this store
type TopicListener func(topic models.Topic, creator models.User)

// Store is the application state container of one client session
type Store struct {
	gw        gateway.Gateway
	clock     clockwork.Clock
	ttl       time.Duration
	strict    bool
	live      bool
	name      string
	metrics   *metrics.Metrics
	onTopic   TopicListener
	startOnce sync.Once

	mu          sync.Mutex
	ctx         context.Context
	state       State
	timers      map[string]clockwork.Timer
	inflight    map[string]struct{}
	refreshSeq  uint64
	appliedSeq  uint64
	authPending bool
	closed      bool
	unsubs      []func()
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock, for tests
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithNotificationTTL sets how long notifications stay visible
func WithNotificationTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithStrictWagers makes a failed remote insert abort the wager instead of
// applying it locally anyway
func WithStrictWagers(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// WithRewards sets the reward catalog
func WithRewards(rewards []models.Reward) Option {
	return func(s *Store) {
		s.state.Rewards = append([]models.Reward(nil), rewards...)
	}
}

// WithTopicListener registers a hook for created topics
func WithTopicListener(fn TopicListener) Option {
	return func(s *Store) { s.onTopic = fn }
}

// WithMetrics records action outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLiveTopics subscribes to topic changes when the gateway supports it
func WithLiveTopics() Option {
	return func(s *Store) { s.live = true }
}

// WithName labels log lines of this store, usually with the session key
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// New creates an empty, anonymous store over gw
func New(gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		clock:    clockwork.NewRealClock(),
		ttl:      DefaultNotificationTTL,
		ctx:      context.Background(),
		timers:   make(map[string]clockwork.Timer),
		inflight: make(map[string]struct{}),
		state: State{
			Session: SessionAnonymous,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to auth changes (and topic changes with WithLiveTopics) and
// runs the first refresh. Calling it again does nothing.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.ctx = ctx
		s.mu.Unlock()

		s.addUnsub(s.gw.OnAuthChange(s.handleAuthChange))

		if feed, ok := s.gw.(gateway.ChangeFeed); ok && s.live {
			stop, err := feed.WatchCollection(ctx, gateway.CollectionTopics, s.handleTopicChange)
			if err != nil {
				logger.Error(s.name, "topic_feed_failed", err)
			} else {
				s.addUnsub(stop)
			}
		}

		s.Refresh(ctx)
	})
}

func (s *Store) addUnsub(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fn()
		return
	}
	s.unsubs = append(s.unsubs, fn)
}

// Close unsubscribes from the gateway and cancels pending notification timers.
// A closed store ignores later auth and change events.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
	logger.Debug(s.name, "store_closed", "")
}

// Closed reports whether Close was called
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) handleAuthChange(event gateway.AuthEvent, session *gateway.Session) {
	s.mu.Lock()
	closed, ctx := s.closed, s.ctx
	s.mu.Unlock()
	if closed {
		return
	}
	userID := ""
	if session != nil {
		userID = session.User.ID
	}
	logger.Debug(userID, "auth_change", "event="+string(event))
	s.Refresh(ctx)
}

func (s *Store) handleTopicChange(_ string, row gateway.Row) {
	topic, err := toTopic(row)
	if err != nil {
		logger.Debug(s.name, "topic_change_skipped", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.upsertTopicLocked(topic)
}

// upsertTopicLocked replaces a known topic in place or prepends a new one
func (s *Store) upsertTopicLocked(topic models.Topic) {
	for i := range s.state.Topics {
		if s.state.Topics[i].ID == topic.ID {
			topics := append([]models.Topic(nil), s.state.Topics...)
			topics[i] = topic
			s.state.Topics = topics
			return
		}
	}
	s.state.Topics = append([]models.Topic{topic}, s.state.Topics...)
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if s.state.User != nil {
		u := *s.state.User
		st.User = &u
	}
	st.Topics = append([]models.Topic(nil), s.state.Topics...)
	st.Predictions = append([]models.Prediction(nil), s.state.Predictions...)
	st.Transactions = append([]models.Transaction(nil), s.state.Transactions...)
	st.Rewards = append([]models.Reward(nil), s.state.Rewards...)
	st.Redemptions = append([]models.Redemption(nil), s.state.Redemptions...)
	st.Notifications = append([]models.Notification(nil), s.state.Notifications...)
	return st
}

// UserID returns the current user's id, or "" when signed out
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return ""
	}
	return s.state.User.ID
}

func (s *Store) count(action, outcome string) {
	if s.metrics != nil {
		s.metrics.Actions.WithLabelValues(action, outcome).Inc()
	}
}

func (s *Store) backendFailed(err error) {
	if s.metrics == nil {
		return
	}
	collection := "unknown"
	var be *gateway.BackendError
	if errors.As(err, &be) {
		collection = be.Collection
	}
	s.metrics.BackendErrors.WithLabelValues(collection).Inc()
}

// acquireLocked marks key as in flight; it returns false if it already is
func (s *Store) acquireLocked(key string) bool {
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Store) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

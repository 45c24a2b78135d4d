package store

import (
	"context"
	"fmt"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

// fetched is everything one refresh read from the backend.
// A nil slice or pointer means the read failed and the prior value is kept.
type fetched struct {
	session     *gateway.Session
	profile     *profileRecord
	points      *int64
	predictions []models.Prediction
	topics      []models.Topic
}

// Refresh re-reads the session, the user's profile, points and predictions and
// the topic list. Read failures are logged and leave the affected part of the
// state as it was.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.refreshSeq++
	seq := s.refreshSeq
	s.state.Loading = true
	s.mu.Unlock()

	session, err := s.gw.GetSession(ctx)
	if err != nil {
		logger.Error(s.name, "refresh_session", err)
		s.countRefresh("error")
		s.mu.Lock()
		if seq >= s.appliedSeq {
			s.state.Loading = false
		}
		s.mu.Unlock()
		return
	}

	f := fetched{session: session}
	if session != nil {
		s.fetchUser(ctx, &f)
	}

	rows, err := s.gw.Query(ctx, gateway.CollectionTopics, nil, gateway.NewestFirst)
	if err != nil {
		logger.Error(s.name, "refresh_topics", err)
		s.backendFailed(err)
	} else if topics := toTopics(rows); len(topics) > 0 {
		f.topics = topics
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq < s.appliedSeq {
		// a newer refresh already landed
		return
	}
	s.appliedSeq = seq
	s.applyLocked(f)
	s.state.Loading = false
	s.countRefresh("ok")
}

func (s *Store) fetchUser(ctx context.Context, f *fetched) {
	uid := f.session.User.ID
	byUser := gateway.Filter{"user_id": uid}

	rows, err := s.gw.Query(ctx, gateway.CollectionProfiles, gateway.Filter{"id": uid}, gateway.Order{})
	if err != nil {
		logger.Error(uid, "refresh_profile", err)
		s.backendFailed(err)
	} else if len(rows) > 0 {
		var p profileRecord
		if err := decodeRow(rows[0], &p); err != nil {
			logger.Debug(uid, "refresh_profile", "undecodable profile: "+err.Error())
		} else {
			f.profile = &p
		}
	}

	rows, err = s.gw.Query(ctx, gateway.CollectionPoints, byUser, gateway.Order{})
	if err != nil {
		logger.Error(uid, "refresh_points", err)
		s.backendFailed(err)
	} else {
		var balance int64
		if len(rows) > 0 {
			var p pointsRecord
			if err := decodeRow(rows[0], &p); err != nil {
				logger.Debug(uid, "refresh_points", "undecodable points: "+err.Error())
			} else {
				balance = p.CurrentPoints
			}
		}
		f.points = &balance
	}

	rows, err = s.gw.Query(ctx, gateway.CollectionPredictions, byUser, gateway.NewestFirst)
	if err != nil {
		logger.Error(uid, "refresh_predictions", err)
		s.backendFailed(err)
	} else {
		f.predictions = toPredictions(rows)
	}
}

func (s *Store) applyLocked(f fetched) {
	if f.topics != nil {
		s.state.Topics = f.topics
	}

	if f.session == nil {
		if s.state.User != nil && s.state.User.Demo {
			return
		}
		s.state.User = nil
		s.state.Predictions = nil
		s.state.Transactions = nil
		if s.authPending {
			s.state.Session = SessionAuthenticating
		} else {
			s.state.Session = SessionAnonymous
		}
		return
	}

	id := f.session.User
	prior := s.state.User
	sameUser := prior != nil && prior.ID == id.ID

	user := &models.User{
		ID:    id.ID,
		Email: id.Email,
		Name:  id.FullName,
		Rank:  models.DefaultRank,
	}
	if user.Name == "" {
		user.Name = gateway.EmailLocalPart(id.Email)
	}
	user.Avatar = id.AvatarURL
	if user.Avatar == "" {
		user.Avatar = gateway.AvatarURL(id.Email)
	}

	switch {
	case f.profile != nil && !f.profile.CreatedAt.IsZero():
		user.JoinedAt = f.profile.CreatedAt
	case sameUser:
		user.JoinedAt = prior.JoinedAt
	default:
		user.JoinedAt = s.clock.Now()
	}
	if f.profile != nil {
		if f.profile.Name != "" {
			user.Name = f.profile.Name
		}
		if f.profile.AvatarURL != "" {
			user.Avatar = f.profile.AvatarURL
		}
	}

	switch {
	case f.points != nil:
		user.Points = *f.points
	case sameUser:
		user.Points = prior.Points
	}

	if !sameUser {
		s.state.Transactions = nil
		s.state.Predictions = nil
		logger.Debug(user.ID, "session_user", fmt.Sprintf("name=%s points=%d", user.Name, user.Points))
	}
	if f.predictions != nil {
		s.state.Predictions = f.predictions
	}

	s.state.User = user
	s.state.Session = SessionAuthenticated
}

func (s *Store) countRefresh(result string) {
	if s.metrics != nil {
		s.metrics.Refreshes.WithLabelValues(result).Inc()
	}
}

package store

import (
	"github.com/google/uuid"

	"predictionclub/internal/models"
)

// Notify shows a message that disappears after the notification TTL
func (s *Store) Notify(kind models.NotificationKind, message string) models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyLocked(kind, message)
}

func (s *Store) notifyLocked(kind models.NotificationKind, message string) models.Notification {
	if !kind.Valid() {
		kind = models.NotificationError
	}
	n := models.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		CreatedAt: s.clock.Now(),
	}
	s.state.Notifications = append(s.state.Notifications, n)

	if !s.closed {
		id := n.ID
		s.timers[id] = s.clock.AfterFunc(s.ttl, func() {
			s.expire(id)
		})
	}
	return n
}

// Dismiss removes a notification before it expires. It reports whether one was removed.
func (s *Store) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	return s.removeNotificationLocked(id)
}

func (s *Store) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, id)
	s.removeNotificationLocked(id)
}

func (s *Store) removeNotificationLocked(id string) bool {
	for i, n := range s.state.Notifications {
		if n.ID == id {
			out := make([]models.Notification, 0, len(s.state.Notifications)-1)
			out = append(out, s.state.Notifications[:i]...)
			out = append(out, s.state.Notifications[i+1:]...)
			s.state.Notifications = out
			return true
		}
	}
	return false
}

// rejectLocked raises an error notification for a validation failure and returns it
func (s *Store) rejectLocked(action string, err *ValidationError, message string) error {
	if message == "" {
		message = err.Message
	}
	s.notifyLocked(models.NotificationError, message)
	s.count(action, "rejected")
	return err
}

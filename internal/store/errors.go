package store

// ValidationError is a rejection detected before any network call.
// Message is shown to the user as an error notification.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrNotAuthenticated   = &ValidationError{Code: "not_authenticated", Message: "Please sign in first."}
	ErrInsufficientPoints = &ValidationError{Code: "insufficient_points", Message: "Insufficient points!"}
	ErrInvalidWager       = &ValidationError{Code: "invalid_wager", Message: "Wager must be a positive number of points."}
	ErrTopicNotFound      = &ValidationError{Code: "topic_not_found", Message: "That topic no longer exists."}
	ErrRewardNotFound     = &ValidationError{Code: "reward_not_found", Message: "That reward is not available."}
	ErrInvalidTopic       = &ValidationError{Code: "invalid_topic", Message: "A topic needs a title, a description and a future end time."}
	ErrInvalidEmail       = &ValidationError{Code: "invalid_email", Message: "Please enter a valid email address."}
	ErrActionInFlight     = &ValidationError{Code: "in_flight", Message: "Still working on your last request."}
	// ErrSessionChanged is returned when the user signed out while a call was in flight.
	// It is not shown as a notification.
	ErrSessionChanged = &ValidationError{Code: "session_changed", Message: "Your session changed."}
)

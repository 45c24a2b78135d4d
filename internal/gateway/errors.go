package gateway

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned by sign-in when the backend rejects the credentials
var ErrInvalidCredentials = errors.New("invalid login credentials")

// ErrNotSignedIn is returned by operations that need a session
var ErrNotSignedIn = errors.New("not signed in")

// AuthError is any failure of an authentication operation
type AuthError struct {
	Op      string // signIn, signUp, signOut, getSession
	Message string // user-facing text
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// UserMessage returns text suitable for a notification
func (e *AuthError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Authentication failed"
}

// BackendError is any failure of a row operation
type BackendError struct {
	Collection string
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Collection, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is or wraps an *AuthError
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsBackendError reports whether err is or wraps a *BackendError
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

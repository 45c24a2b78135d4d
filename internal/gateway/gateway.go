// Package gateway defines the contract between the application store and the
// hosted backend: authentication, generic row queries/inserts and auth-change
// subscriptions. Implementations live in gateway/supabase and storage.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Collections consumed by the store
const (
	CollectionProfiles    = "user_profiles"
	CollectionPoints      = "user_points"
	CollectionTopics      = "topics"
	CollectionPredictions = "predictions"
)

// Row is one record as returned by the backend
type Row map[string]any

// Filter is a set of column equality constraints
type Filter map[string]any

// Columns returns the filter's columns in a stable order
func (f Filter) Columns() []string {
	cols := make([]string, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Order is an optional sort on a single column
type Order struct {
	Column     string
	Descending bool
}

// IsZero reports whether no ordering was requested
func (o Order) IsZero() bool {
	return o.Column == ""
}

// String renders the order in PostgREST form (col.asc / col.desc)
func (o Order) String() string {
	if o.IsZero() {
		return ""
	}
	if o.Descending {
		return o.Column + ".desc"
	}
	return o.Column + ".asc"
}

// NewestFirst orders by created_at descending
var NewestFirst = Order{Column: "created_at", Descending: true}

// Identity is the authenticated principal attached to a session
type Identity struct {
	ID        string
	Email     string
	FullName  string
	AvatarURL string
}

// Session is an authenticated backend session
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         Identity
}

// Expired reports whether the access token is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ProfileDefaults are stored as user metadata on sign-up
type ProfileDefaults struct {
	FullName  string
	AvatarURL string
}

// DefaultProfile derives a display name and avatar from an email address
func DefaultProfile(email string) ProfileDefaults {
	return ProfileDefaults{
		FullName:  EmailLocalPart(email),
		AvatarURL: AvatarURL(email),
	}
}

// EmailLocalPart returns the part of an email before '@'
func EmailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// AvatarURL returns a generated avatar seeded by s
func AvatarURL(seed string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", seed)
}

// AuthEvent is the kind of auth-state transition
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthHandler receives auth-state transitions
type AuthHandler func(event AuthEvent, session *Session)

// Gateway is the only component that performs network I/O against the backend.
// It performs no caching, retries or backoff.
type Gateway interface {
	// GetSession returns the current session or nil when anonymous
	GetSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp may return a nil session when email confirmation is pending
	SignUp(ctx context.Context, email, password string, defaults ProfileDefaults) (*Session, error)
	SignOut(ctx context.Context) error
	// OnAuthChange registers a handler and returns its unsubscribe func
	OnAuthChange(handler AuthHandler) (unsubscribe func())
	Query(ctx context.Context, collection string, filter Filter, order Order) ([]Row, error)
	Insert(ctx context.Context, collection string, row Row) (Row, error)
}

// ChangeHandler receives the new row of a changed record
type ChangeHandler func(collection string, row Row)

// ChangeFeed is implemented by gateways that can push row changes
type ChangeFeed interface {
	WatchCollection(ctx context.Context, collection string, handler ChangeHandler) (stop func(), err error)
}

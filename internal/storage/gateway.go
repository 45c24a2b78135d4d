package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

// AccessTokenTTL is the lifetime of an access token issued by the local backend
const AccessTokenTTL = time.Hour

var (
	// ErrInsufficientPoints is returned when a wager exceeds the stored balance
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrTopicNotOpen is returned when wagering on a missing or inactive topic
	ErrTopicNotOpen = errors.New("topic is not open for predictions")
	// ErrForbidden is returned when a row does not belong to the session user
	ErrForbidden = errors.New("row violates access policy")
)

// Gateway is one client session's view of the local backend
type Gateway struct {
	db  *DB
	hub gateway.AuthHub

	mu      sync.Mutex
	session *gateway.Session
}

// NewGateway returns an anonymous gateway over the shared database
func (d *DB) NewGateway() *Gateway {
	return &Gateway{db: d}
}

var _ gateway.Gateway = (*Gateway)(nil)

// OnAuthChange registers handler for sign-in/out events of this session
func (g *Gateway) OnAuthChange(handler gateway.AuthHandler) func() {
	return g.hub.Subscribe(handler)
}

// GetSession returns the current session. An expired token is refreshed when the
// account still exists; otherwise the session is dropped.
func (g *Gateway) GetSession(ctx context.Context) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return nil, nil
	}
	if !g.session.Expired(g.db.now()) {
		s := *g.session
		return &s, nil
	}

	ident, err := g.db.identityByID(ctx, g.session.User.ID)
	if err != nil {
		return nil, &gateway.AuthError{Op: "getSession", Err: err}
	}
	if ident == nil {
		logger.Debug(g.session.User.ID, "session_dropped", "account no longer exists")
		g.session = nil
		return nil, nil
	}
	refreshed, err := g.db.issueSession(*ident)
	if err != nil {
		return nil, &gateway.AuthError{Op: "getSession", Err: err}
	}
	g.session = refreshed
	s := *refreshed
	return &s, nil
}

// SignIn checks the password and starts a session
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var ident gateway.Identity
	var hash string
	var fullName, avatar sql.NullString
	err := g.db.conn.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, avatar_url
		FROM auth_users
		WHERE email = ?
	`, email).Scan(&ident.ID, &ident.Email, &hash, &fullName, &avatar)
	if err == sql.ErrNoRows {
		return nil, &gateway.AuthError{Op: "signIn", Message: "Invalid login credentials", Err: gateway.ErrInvalidCredentials}
	}
	if err != nil {
		return nil, &gateway.AuthError{Op: "signIn", Err: fmt.Errorf("failed to get user by email: %w", err)}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, &gateway.AuthError{Op: "signIn", Message: "Invalid login credentials", Err: gateway.ErrInvalidCredentials}
	}
	ident.FullName = fullName.String
	ident.AvatarURL = avatar.String

	return g.start(ident)
}

// SignUp creates the account with its profile and welcome grant, then starts a session
func (g *Gateway) SignUp(ctx context.Context, email, password string, defaults gateway.ProfileDefaults) (*gateway.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, &gateway.AuthError{Op: "signUp", Message: "Unable to validate email address: invalid format"}
	}
	if len(password) < 6 {
		return nil, &gateway.AuthError{Op: "signUp", Message: "Password should be at least 6 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to hash password: %w", err)}
	}

	ident := gateway.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		FullName:  defaults.FullName,
		AvatarURL: defaults.AvatarURL,
	}
	if err := g.db.createAccount(ctx, ident, string(hash)); err != nil {
		return nil, err
	}
	logger.Debug(ident.ID, "account_created", fmt.Sprintf("email=%s welcome_bonus=%d", email, models.WelcomeBonus))

	return g.start(ident)
}

// SignOut ends the session. It never fails for the local backend.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	had := g.session != nil
	g.session = nil
	g.mu.Unlock()

	if had {
		g.hub.Emit(gateway.EventSignedOut, nil)
	}
	return nil
}

func (g *Gateway) start(ident gateway.Identity) (*gateway.Session, error) {
	session, err := g.db.issueSession(ident)
	if err != nil {
		return nil, &gateway.AuthError{Op: "signIn", Err: err}
	}

	g.mu.Lock()
	g.session = session
	g.mu.Unlock()

	s := *session
	g.hub.Emit(gateway.EventSignedIn, &s)
	return &s, nil
}

func (g *Gateway) currentUserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return ""
	}
	return g.session.User.ID
}

// createAccount inserts the auth user, profile and points rows in one transaction
func (d *DB) createAccount(ctx context.Context, ident gateway.Identity, hash string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users WHERE email = ?`, ident.Email).Scan(&exists); err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to check email: %w", err)}
	}
	if exists > 0 {
		return &gateway.AuthError{Op: "signUp", Message: "User already registered"}
	}

	now := formatTime(d.now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auth_users (id, email, password_hash, full_name, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ident.ID, ident.Email, hash, ident.FullName, ident.AvatarURL, now); err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to insert user: %w", err)}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_profiles (id, name, avatar_url, created_at) VALUES (?, ?, ?, ?)
	`, ident.ID, ident.FullName, ident.AvatarURL, now); err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to insert profile: %w", err)}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_points (user_id, current_points) VALUES (?, ?)
	`, ident.ID, models.WelcomeBonus); err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to insert welcome bonus: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return &gateway.AuthError{Op: "signUp", Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	return nil
}

// identityByID returns nil, nil when the account does not exist
func (d *DB) identityByID(ctx context.Context, id string) (*gateway.Identity, error) {
	var ident gateway.Identity
	var fullName, avatar sql.NullString
	err := d.conn.QueryRowContext(ctx, `
		SELECT id, email, full_name, avatar_url FROM auth_users WHERE id = ?
	`, id).Scan(&ident.ID, &ident.Email, &fullName, &avatar)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	ident.FullName = fullName.String
	ident.AvatarURL = avatar.String
	return &ident, nil
}

type accessClaims struct {
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	jwt.RegisteredClaims
}

func (d *DB) issueSession(ident gateway.Identity) (*gateway.Session, error) {
	now := d.now()
	expires := now.Add(AccessTokenTTL)
	claims := accessClaims{
		Email:     ident.Email,
		FullName:  ident.FullName,
		AvatarURL: ident.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &gateway.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    expires,
		User:         ident,
	}, nil
}

// VerifyToken validates an access token issued by this database
func (d *DB) VerifyToken(token string) (gateway.Identity, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return d.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(d.now))
	if err != nil {
		return gateway.Identity{}, fmt.Errorf("invalid access token: %w", err)
	}
	return gateway.Identity{
		ID:        claims.Subject,
		Email:     claims.Email,
		FullName:  claims.FullName,
		AvatarURL: claims.AvatarURL,
	}, nil
}

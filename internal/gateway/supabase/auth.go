package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
)

// GetSession returns the current session. An expired access token is exchanged
// using the refresh token; if that fails the session is dropped. No auth event is
// emitted from here, so handlers that call GetSession cannot recurse.
func (c *Client) GetSession(ctx context.Context) (*gateway.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(c.now()) {
		s := *current
		return &s, nil
	}
	if current.RefreshToken == "" {
		c.clearSession(current)
		return nil, nil
	}

	body, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token",
		map[string]string{"refresh_token": current.RefreshToken},
		map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// refresh token revoked or expired
			logger.Debug(current.User.ID, "session_refresh_rejected", apiErr.Message)
			c.clearSession(current)
			return nil, nil
		}
		return nil, &gateway.AuthError{Op: "getSession", Err: err}
	}

	refreshed, err := c.parseSession(body)
	if err != nil || refreshed == nil {
		return nil, &gateway.AuthError{Op: "getSession", Err: fmt.Errorf("malformed refresh response: %w", err)}
	}

	c.mu.Lock()
	c.session = refreshed
	c.mu.Unlock()

	s := *refreshed
	return &s, nil
}

func (c *Client) clearSession(expected *gateway.Session) {
	c.mu.Lock()
	if c.session == expected {
		c.session = nil
	}
	c.mu.Unlock()
}

// SignIn exchanges email and password for a session
func (c *Client) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	body, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		map[string]string{"email": email, "password": password},
		map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return nil, authError("signIn", err)
	}

	session, err := c.parseSession(body)
	if err != nil {
		return nil, &gateway.AuthError{Op: "signIn", Err: err}
	}
	if session == nil {
		return nil, &gateway.AuthError{Op: "signIn", Err: errors.New("no session in response")}
	}
	return c.start(session), nil
}

// SignUp registers an account with profile metadata. With email confirmation
// enabled the backend returns no session and nil is returned.
func (c *Client) SignUp(ctx context.Context, email, password string, defaults gateway.ProfileDefaults) (*gateway.Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"full_name":  defaults.FullName,
			"avatar_url": defaults.AvatarURL,
		},
	}
	body, err := c.do(ctx, http.MethodPost, "/auth/v1/signup", payload,
		map[string]string{"Authorization": "Bearer " + c.apiKey})
	if err != nil {
		return nil, authError("signUp", err)
	}

	session, err := c.parseSession(body)
	if err != nil {
		return nil, &gateway.AuthError{Op: "signUp", Err: err}
	}
	if session == nil {
		logger.Debug(gjson.GetBytes(body, "id").String(), "signup_confirmation_pending", "email="+email)
		return nil, nil
	}
	return c.start(session), nil
}

// SignOut revokes the session remotely and always clears it locally
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.session = nil
	c.mu.Unlock()

	if current == nil {
		return nil
	}

	_, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", nil,
		map[string]string{"Authorization": "Bearer " + current.AccessToken})
	c.hub.Emit(gateway.EventSignedOut, nil)
	if err != nil {
		return &gateway.AuthError{Op: "signOut", Err: err}
	}
	return nil
}

func (c *Client) start(session *gateway.Session) *gateway.Session {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	s := *session
	c.hub.Emit(gateway.EventSignedIn, &s)
	return &s
}

// parseSession reads a GoTrue token response. It returns nil, nil when the body
// carries a user but no access token.
func (c *Client) parseSession(body []byte) (*gateway.Session, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON")
	}
	res := gjson.ParseBytes(body)
	token := res.Get("access_token").String()
	if token == "" {
		return nil, nil
	}

	user := res.Get("user")
	session := &gateway.Session{
		AccessToken:  token,
		RefreshToken: res.Get("refresh_token").String(),
		User: gateway.Identity{
			ID:        user.Get("id").String(),
			Email:     user.Get("email").String(),
			FullName:  user.Get("user_metadata.full_name").String(),
			AvatarURL: user.Get("user_metadata.avatar_url").String(),
		},
	}

	switch {
	case res.Get("expires_at").Exists():
		session.ExpiresAt = time.Unix(res.Get("expires_at").Int(), 0)
	case res.Get("expires_in").Exists():
		session.ExpiresAt = c.now().Add(time.Duration(res.Get("expires_in").Int()) * time.Second)
	default:
		session.ExpiresAt = tokenExpiry(token)
	}

	if session.User.ID == "" {
		session.User.ID = tokenSubject(token)
	}
	return session, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the backend
// verifies tokens, the client only needs to know when to refresh.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func tokenSubject(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

func authError(op string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		ae := &gateway.AuthError{Op: op, Message: apiErr.Message, Err: err}
		if op == "signIn" && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
			ae.Err = fmt.Errorf("%w: %v", gateway.ErrInvalidCredentials, err)
		}
		return ae
	}
	return &gateway.AuthError{Op: op, Message: "Network error, please try again", Err: err}
}

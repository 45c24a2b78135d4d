package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/tidwall/gjson"

	"predictionclub/internal/logger"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// SessionKeyKey is the context key for the client session key
	SessionKeyKey ContextKey = "session_key"

	// CookieName is the name of the session cookie
	CookieName = "predictionclub"

	// InitDataHeader carries Telegram Mini App launch data
	InitDataHeader = "X-Telegram-Init-Data"

	sessionIDField = "sid"
	initDataMaxAge = 24 * time.Hour
)

// TelegramKey is the session key shared by a Telegram user's bot chat and Mini App
func TelegramKey(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

// Manager assigns every API client a session key
type Manager struct {
	cookies  *sessions.CookieStore
	botToken string
	now      func() time.Time
}

// NewManager signs cookies with secret. Telegram launch data is only accepted
// when botToken is set.
func NewManager(secret, botToken string) *Manager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{cookies: store, botToken: botToken, now: time.Now}
}

// ValidateInitData checks the signature and age of Telegram Mini App launch
// data and returns the Telegram user id
func ValidateInitData(initData, botToken string, now time.Time) (int64, error) {
	if botToken == "" {
		return 0, fmt.Errorf("telegram bot token not configured")
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("failed to parse initData: %w", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("hash not found in initData")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	if !hmac.Equal([]byte(hash), []byte(signInitData(strings.Join(lines, "\n"), botToken))) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid auth_date format")
	}
	if now.Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("auth_date is too old")
	}

	id := gjson.Get(values.Get("user"), "id")
	if id.Type != gjson.Number || id.Int() == 0 {
		return 0, fmt.Errorf("user id not found")
	}
	return id.Int(), nil
}

func signInitData(dataCheck, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(dataCheck))
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware puts a session key into the request context of every /api/ call.
// Telegram launch data wins over the cookie; a client without either gets a
// fresh cookie.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/ping" {
			next.ServeHTTP(w, r)
			return
		}

		if initData := r.Header.Get(InitDataHeader); initData != "" {
			userID, err := ValidateInitData(initData, m.botToken, m.now())
			if err != nil {
				logger.Debug("", "auth_init_data_rejected", "error="+err.Error())
				http.Error(w, "Unauthorized: invalid initData", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSessionKey(r.Context(), TelegramKey(userID))))
			return
		}

		// a cookie that fails to decode yields a new empty session
		sess, _ := m.cookies.Get(r, CookieName)
		key, _ := sess.Values[sessionIDField].(string)
		if key == "" {
			key = "web:" + uuid.NewString()
			sess.Values[sessionIDField] = key
			if err := sess.Save(r, w); err != nil {
				logger.Error("", "auth_cookie_save", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			logger.Debug(key, "auth_new_session", "path="+r.URL.Path)
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSessionKey(r.Context(), key)))
	})
}

// ContextWithSessionKey adds the session key to the context
func ContextWithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, SessionKeyKey, key)
}

// GetSessionKeyFromContext retrieves the session key from the context
func GetSessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(SessionKeyKey).(string)
	return key, ok && key != ""
}

// Package supabase implements gateway.Gateway against a hosted Supabase project:
// GoTrue auth endpoints, PostgREST rows and the Realtime websocket.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
)

// Client is one client session's connection to the hosted backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time

	hub gateway.AuthHub

	mu      sync.Mutex
	session *gateway.Session
}

// Config holds client configuration
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// DefaultTimeout bounds every request of a client built without its own http.Client
const DefaultTimeout = 30 * time.Second

var _ gateway.Gateway = (*Client)(nil)
var _ gateway.ChangeFeed = (*Client)(nil)

// New creates a client. It never fails: a missing URL or key is logged and the
// client talks to a placeholder project, so every call fails as a normal error.
func New(cfg Config) *Client {
	if cfg.URL == "" || cfg.APIKey == "" {
		logger.Warn("", "supabase_unconfigured", "missing URL or anon key, using placeholder project")
		if cfg.URL == "" {
			cfg.URL = "https://placeholder.supabase.co"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "placeholder"
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// OnAuthChange registers handler for auth-state transitions of this client
func (c *Client) OnAuthChange(handler gateway.AuthHandler) func() {
	return c.hub.Subscribe(handler)
}

// bearer returns the user's access token, or the anon key when signed out
func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.AccessToken != "" {
		return c.session.AccessToken
	}
	return c.apiKey
}

// do sends a request and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if _, ok := headers["Authorization"]; !ok {
		req.Header.Set("Authorization", "Bearer "+c.bearer())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// APIError is a non-2xx response from the hosted backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase API error %d: %s", e.StatusCode, e.Message)
}

// errorMessage extracts the human-readable message from GoTrue or PostgREST error bodies
func errorMessage(body []byte) string {
	res := gjson.GetManyBytes(body, "error_description", "msg", "message", "error")
	for _, r := range res {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	if len(body) == 0 {
		return "empty response"
	}
	return strings.TrimSpace(string(body))
}

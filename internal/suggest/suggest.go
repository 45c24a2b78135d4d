// Package suggest asks a generative-text model for moderation commentary on
// proposed topics. It never returns errors to callers.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"predictionclub/internal/logger"
	"predictionclub/internal/metrics"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.5-flash"

// RequestTimeout bounds a single generation call
const RequestTimeout = 20 * time.Second

var errRateLimited = errors.New("suggestion rate limit reached")

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service produces moderation commentary for topic suggestions
type Service struct {
	gen     Generator
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithRateLimit allows at most perMinute calls per minute, with a burst of perMinute
func WithRateLimit(perMinute int) Option {
	return func(s *Service) {
		if perMinute > 0 {
			s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

// WithMetrics records outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a service. A nil generator yields a service that always reports no suggestion.
func New(gen Generator, opts ...Option) *Service {
	s := &Service{gen: gen}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prompt builds the moderation prompt for a suggestion
func Prompt(suggestion string) string {
	return fmt.Sprintf("Analyze this prediction topic suggestion for high school students: \"%s\". "+
		"Is it appropriate? Does it have a clear outcome? Suggest a title and category.", suggestion)
}

// Analyze returns commentary on text, or ok=false when none is available.
// Failures are logged and never returned.
func (s *Service) Analyze(ctx context.Context, text string) (commentary string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if s == nil || s.gen == nil {
		logger.Debug("", "suggestion_unavailable", "no generator configured")
		s.observe("unavailable")
		return "", false
	}
	if s.limiter != nil && !s.limiter.Allow() {
		logger.Warn("", "suggestion_failed", errRateLimited.Error())
		s.observe("rate_limited")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	out, err := s.gen.Generate(ctx, Prompt(text))
	if err != nil {
		logger.Error("", "suggestion_failed", err)
		s.observe("error")
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		logger.Debug("", "suggestion_empty", "model returned no text")
		s.observe("empty")
		return "", false
	}
	s.observe("ok")
	return out, true
}

func (s *Service) observe(outcome string) {
	if s != nil && s.metrics != nil {
		s.metrics.Suggestions.WithLabelValues(outcome).Inc()
	}
}

// Gemini generates text with the Gemini API
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator. It returns nil, nil when apiKey is empty;
// pass the result through AsGenerator before handing it to New.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, nil
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate implements Generator
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

// AsGenerator returns nil for a nil *Gemini
func (g *Gemini) AsGenerator() Generator {
	if g == nil {
		return nil
	}
	return g
}

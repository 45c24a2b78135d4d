package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

// Backend selects the gateway implementation
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// Placeholder connection used when the hosted backend is not configured
const (
	PlaceholderSupabaseURL = "https://placeholder.supabase.co"
	PlaceholderSupabaseKey = "placeholder"
)

//go:embed rewards.yaml
var defaultRewards []byte

// Config holds every runtime setting, read from the environment
type Config struct {
	Port    string `env:"PORT,default=8080"`
	Backend string `env:"BACKEND,default=supabase"`

	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	DatabasePath string `env:"DATABASE_PATH,default=/app/data/club.db"`
	JWTSecret    string `env:"JWT_SECRET,default=local-dev-secret"`

	GeminiAPIKey         string `env:"GEMINI_API_KEY"`
	GeminiModel          string `env:"GEMINI_MODEL,default=gemini-2.5-flash"`
	SuggestionsPerMinute int    `env:"SUGGESTIONS_PER_MINUTE,default=10"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChannelID        string `env:"CHANNEL_ID"`
	WebAppURL        string `env:"WEB_APP_URL"`

	SessionSecret  string `env:"SESSION_SECRET,default=change-me-session-secret"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	StaticDir      string `env:"STATIC_DIR,default=./web"`

	NotificationTTL    time.Duration `env:"NOTIFICATION_TTL,default=4s"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT,default=30m"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL,default=1m"`

	RewardsCatalog string `env:"REWARDS_CATALOG"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	StrictWagers   bool   `env:"STRICT_WAGERS,default=false"`
}

// Load reads an optional .env file and decodes the environment into a Config.
// Missing hosted-backend credentials fall back to a placeholder connection with a warning.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("", "config_dotenv", err.Error())
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyPlaceholders()
	return &cfg, nil
}

// Validate checks values envdecode cannot
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSupabase, BackendSQLite:
	default:
		return fmt.Errorf("unknown BACKEND %q (want %s or %s)", c.Backend, BackendSupabase, BackendSQLite)
	}
	if c.NotificationTTL <= 0 {
		return fmt.Errorf("NOTIFICATION_TTL must be positive")
	}
	if c.SuggestionsPerMinute <= 0 {
		return fmt.Errorf("SUGGESTIONS_PER_MINUTE must be positive")
	}
	return nil
}

func (c *Config) applyPlaceholders() {
	if c.Backend != BackendSupabase {
		return
	}
	if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
		logger.Warn("", "config_supabase_missing", "SUPABASE_URL or SUPABASE_ANON_KEY not set, using placeholder connection")
		if c.SupabaseURL == "" {
			c.SupabaseURL = PlaceholderSupabaseURL
		}
		if c.SupabaseAnonKey == "" {
			c.SupabaseAnonKey = PlaceholderSupabaseKey
		}
	}
}

// Origins splits ALLOWED_ORIGINS on commas
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Rewards returns the reward catalog, from REWARDS_CATALOG if set, else the built-in one
func (c *Config) Rewards() ([]models.Reward, error) {
	data := defaultRewards
	if c.RewardsCatalog != "" {
		b, err := os.ReadFile(c.RewardsCatalog)
		if err != nil {
			return nil, fmt.Errorf("failed to read rewards catalog: %w", err)
		}
		data = b
	}
	return ParseRewards(data)
}

type rewardsFile struct {
	Rewards []models.Reward `yaml:"rewards"`
}

// ParseRewards decodes a YAML reward catalog
func ParseRewards(data []byte) ([]models.Reward, error) {
	var f rewardsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rewards catalog: %w", err)
	}
	for i, r := range f.Rewards {
		if r.ID == "" || r.Cost <= 0 {
			return nil, fmt.Errorf("reward %d: id and positive cost are required", i)
		}
	}
	return f.Rewards, nil
}

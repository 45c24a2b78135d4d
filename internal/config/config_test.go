package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears keys for the duration of the test
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "PORT", "SUPABASE_URL", "SUPABASE_ANON_KEY", "NOTIFICATION_TTL", "GEMINI_MODEL", "STRICT_WAGERS", "STATIC_DIR", "WEB_APP_URL")
	t.Setenv("BACKEND", "supabase")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4*time.Second, cfg.NotificationTTL)
	assert.Equal(t, PlaceholderSupabaseURL, cfg.SupabaseURL)
	assert.Equal(t, PlaceholderSupabaseKey, cfg.SupabaseAnonKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.False(t, cfg.StrictWagers)
	assert.Equal(t, "./web", cfg.StaticDir)
	assert.Empty(t, cfg.WebAppURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND", "sqlite")
	t.Setenv("NOTIFICATION_TTL", "250ms")
	t.Setenv("STRICT_WAGERS", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.NotificationTTL)
	assert.True(t, cfg.StrictWagers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BACKEND", "firebase")
	_, err := Load()
	require.Error(t, err)
}

func TestDefaultRewards(t *testing.T) {
	cfg := &Config{}
	rewards, err := cfg.Rewards()
	require.NoError(t, err)
	require.Len(t, rewards, 3)

	assert.Equal(t, "r1", rewards[0].ID)
	assert.Equal(t, int64(1000), rewards[0].Cost)
	assert.Equal(t, "Bulldog Hoodie", rewards[2].Name)
	assert.Equal(t, int64(5000), rewards[2].Cost)
}

func TestRewardsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rewards:\n  - id: pizza\n    name: Pizza Friday\n    cost: 300\n"), 0o644))

	cfg := &Config{RewardsCatalog: path}
	rewards, err := cfg.Rewards()
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, "Pizza Friday", rewards[0].Name)
}

func TestParseRewardsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "missing id", data: "rewards:\n  - name: x\n    cost: 10\n"},
		{name: "zero cost", data: "rewards:\n  - id: x\n    cost: 0\n"},
		{name: "not yaml", data: "rewards: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRewards([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

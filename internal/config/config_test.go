package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	// Reset viper state
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Test server defaults
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, 30, cfg.Server.WriteTimeoutSeconds)
	assert.Equal(t, 120, cfg.Server.IdleTimeoutSeconds)

	// Test database defaults
	assert.Equal(t, "./data/trainersearch.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	assert.Equal(t, 5000, cfg.Database.BusyTimeoutMs)

	// Test Redis defaults
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "specialties", cfg.Redis.Prefix)

	// Test log defaults
	assert.Equal(t, "info", cfg.Log.Level)

	// Test auth defaults
	assert.Equal(t, "change-me-in-production", cfg.Auth.JWTSecret)
	assert.Equal(t, 24, cfg.Auth.TokenDuration)
	assert.Empty(t, cfg.Auth.AdminPasswordHash)

	// Test search defaults
	assert.Equal(t, 300, cfg.Search.CacheTTLSeconds)
	assert.Equal(t, 5*time.Minute, cfg.Search.CacheTTL())
	assert.Equal(t, "memory", cfg.Search.CacheBackend)
	assert.Equal(t, 300*time.Millisecond, cfg.Search.Debounce())
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 5, cfg.Search.OverfetchFactor)
	assert.Equal(t, []string{"view", "table", "minimal"}, cfg.Search.Strategies)

	// Test Supabase defaults
	assert.False(t, cfg.Supabase.Enabled)
	assert.Equal(t, "http://localhost:54321", cfg.Supabase.BaseURL)
	assert.Equal(t, "trainer_specialties_mv", cfg.Supabase.ViewName)
	assert.Equal(t, "trainers", cfg.Supabase.TableName)
	assert.Equal(t, "refresh_trainer_specialties_mv", cfg.Supabase.RefreshRPC)
	assert.Equal(t, "specialty_stats", cfg.Supabase.StatsView)
	assert.Equal(t, 15, cfg.Supabase.TimeoutSeconds)
	assert.Equal(t, 60, cfg.Supabase.RateLimitRequests)
	assert.Equal(t, 60, cfg.Supabase.RateLimitWindow)
}

func TestConfigFromFile(t *testing.T) {
	// Create temporary config file
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
environment: "test"
server:
  port: 9090
  host: "127.0.0.1"

database:
  path: "/tmp/test.db"

redis:
  host: "redis-server"
  port: 6380
  password: "secret"
  db: 1
  prefix: "ts"

log:
  level: "debug"

auth:
  jwt_secret: "test-secret"
  token_duration: 48

search:
  cache_ttl_seconds: 60
  cache_backend: "redis"
  debounce_ms: 150
  default_limit: 10
  max_limit: 50
  overfetch_factor: 3
  strategies: ["table", "minimal"]

supabase:
  enabled: true
  base_url: "https://project.supabase.co"
  api_key: "anon-key"
  timeout_seconds: 5
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	// Reset viper and set config path
	viper.Reset()
	viper.AddConfigPath(tempDir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Test that file values override defaults
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "redis-server", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "ts", cfg.Redis.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 48, cfg.Auth.TokenDuration)
	assert.Equal(t, time.Minute, cfg.Search.CacheTTL())
	assert.Equal(t, "redis", cfg.Search.CacheBackend)
	assert.Equal(t, 150*time.Millisecond, cfg.Search.Debounce())
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, 3, cfg.Search.OverfetchFactor)
	assert.Equal(t, []string{"table", "minimal"}, cfg.Search.Strategies)
	assert.True(t, cfg.Supabase.Enabled)
	assert.Equal(t, "https://project.supabase.co", cfg.Supabase.BaseURL)
	assert.Equal(t, "anon-key", cfg.Supabase.APIKey)
	assert.Equal(t, 5, cfg.Supabase.TimeoutSeconds)
	// Untouched keys keep their defaults
	assert.Equal(t, "trainer_specialties_mv", cfg.Supabase.ViewName)
}

func TestConfigFromEnvironmentVariables(t *testing.T) {
	// Set environment variables
	envVars := map[string]string{
		"TRAINERSEARCH_ENVIRONMENT":              "production",
		"TRAINERSEARCH_SERVER_PORT":              "8090",
		"TRAINERSEARCH_DATABASE_PATH":            "/data/prod.db",
		"TRAINERSEARCH_REDIS_HOST":               "redis.example.com",
		"TRAINERSEARCH_REDIS_DB":                 "2",
		"TRAINERSEARCH_LOG_LEVEL":                "warn",
		"TRAINERSEARCH_AUTH_JWT_SECRET":          "super-secret-key",
		"TRAINERSEARCH_SEARCH_CACHE_TTL_SECONDS": "30",
		"TRAINERSEARCH_SEARCH_CACHE_BACKEND":     "redis",
		"TRAINERSEARCH_SEARCH_DEBOUNCE_MS":       "500",
		"TRAINERSEARCH_SUPABASE_ENABLED":         "true",
		"TRAINERSEARCH_SUPABASE_API_KEY":         "service-key",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	// Reset viper state
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Test that environment variables override defaults
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "/data/prod.db", cfg.Database.Path)
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "super-secret-key", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL())
	assert.Equal(t, "redis", cfg.Search.CacheBackend)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Debounce())
	assert.True(t, cfg.Supabase.Enabled)
	assert.Equal(t, "service-key", cfg.Supabase.APIKey)
}

func TestConfigFileNotFound(t *testing.T) {
	// Reset viper and set a non-existent config path
	viper.Reset()
	viper.AddConfigPath("/non/existent/path")

	// Should not error when config file is not found, should use defaults
	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfigInvalidYaml(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	invalidYaml := `
server:
  port: 8080
  invalid yaml here [[[
database:
  path: /tmp/test.db
`

	err := os.WriteFile(configFile, []byte(invalidYaml), 0644)
	require.NoError(t, err)

	viper.Reset()
	viper.AddConfigPath(tempDir)

	// Should return error for invalid YAML
	_, err = Load()
	require.Error(t, err)
}

func TestConfigMixedSources(t *testing.T) {
	// Environment variables override file values
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  port: 8080
  host: "localhost"
search:
  default_limit: 12
  max_limit: 40
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	t.Setenv("TRAINERSEARCH_SERVER_PORT", "9090")
	t.Setenv("TRAINERSEARCH_SEARCH_MAX_LIMIT", "60")

	viper.Reset()
	viper.AddConfigPath(tempDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)        // overridden by env var
	assert.Equal(t, "localhost", cfg.Server.Host) // from file
	assert.Equal(t, 12, cfg.Search.DefaultLimit)  // from file
	assert.Equal(t, 60, cfg.Search.MaxLimit)      // overridden by env var
}

func TestConfigRejectsDefaultSecretOutsideDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		secret      string
		wantErr     bool
	}{
		{"development default", "development", "", false},
		{"test default", "test", "", false},
		{"production default", "production", "", true},
		{"staging default", "staging", "", true},
		{"production custom", "production", "a-real-secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TRAINERSEARCH_ENVIRONMENT", tt.environment)
			if tt.secret != "" {
				t.Setenv("TRAINERSEARCH_AUTH_JWT_SECRET", tt.secret)
			}
			viper.Reset()

			cfg, err := Load()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "auth.jwt_secret")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.environment, cfg.Environment)
		})
	}
}

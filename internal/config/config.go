package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultJWTSecret is the development signing secret. It is refused outside
// development and test.
const DefaultJWTSecret = "change-me-in-production"

// Config represents the application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Log         LogConfig      `mapstructure:"log"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Search      SearchConfig   `mapstructure:"search"`
	Supabase    SupabaseConfig `mapstructure:"supabase"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port                int    `mapstructure:"port"`
	Host                string `mapstructure:"host"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds"`
	RateLimitRPS        int    `mapstructure:"rate_limit_rps"` // per client IP, 0 disables
	RateLimitBurst      int    `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
	MaxIdleConns  int    `mapstructure:"max_idle_conns"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	TokenDuration     int    `mapstructure:"token_duration"` // in hours
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

// SearchConfig contains search system configuration
type SearchConfig struct {
	CacheTTLSeconds int      `mapstructure:"cache_ttl_seconds"`
	CacheBackend    string   `mapstructure:"cache_backend"` // memory or redis
	DebounceMS      int      `mapstructure:"debounce_ms"`
	DefaultLimit    int      `mapstructure:"default_limit"`
	MaxLimit        int      `mapstructure:"max_limit"`
	OverfetchFactor int      `mapstructure:"overfetch_factor"`
	Strategies      []string `mapstructure:"strategies"`
}

// CacheTTL returns the result cache freshness window
func (c SearchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Debounce returns the search controller debounce delay
func (c SearchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// SupabaseConfig contains the hosted PostgREST backend configuration
type SupabaseConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	ViewName          string `mapstructure:"view_name"`
	TableName         string `mapstructure:"table_name"`
	RefreshRPC        string `mapstructure:"refresh_rpc"`
	StatsView         string `mapstructure:"stats_view"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	RateLimitRequests int    `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int    `mapstructure:"rate_limit_window"`
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout_seconds", 30)
	viper.SetDefault("server.write_timeout_seconds", 30)
	viper.SetDefault("server.idle_timeout_seconds", 120)
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 40)

	viper.SetDefault("database.path", "./data/trainersearch.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.busy_timeout_ms", 5000)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "specialties")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	viper.SetDefault("auth.token_duration", 24)
	viper.SetDefault("auth.admin_password_hash", "")

	viper.SetDefault("search.cache_ttl_seconds", 300)
	viper.SetDefault("search.cache_backend", "memory")
	viper.SetDefault("search.debounce_ms", 300)
	viper.SetDefault("search.default_limit", 20)
	viper.SetDefault("search.max_limit", 100)
	viper.SetDefault("search.overfetch_factor", 5)
	viper.SetDefault("search.strategies", []string{"view", "table", "minimal"})

	// Supabase defaults
	viper.SetDefault("supabase.enabled", false)
	viper.SetDefault("supabase.base_url", "http://localhost:54321")
	viper.SetDefault("supabase.api_key", "")
	viper.SetDefault("supabase.view_name", "trainer_specialties_mv")
	viper.SetDefault("supabase.table_name", "trainers")
	viper.SetDefault("supabase.refresh_rpc", "refresh_trainer_specialties_mv")
	viper.SetDefault("supabase.stats_view", "specialty_stats")
	viper.SetDefault("supabase.timeout_seconds", 15)
	viper.SetDefault("supabase.rate_limit_requests", 60)
	viper.SetDefault("supabase.rate_limit_window", 60)

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/trainersearch")

	// Environment variable settings
	viper.SetEnvPrefix("TRAINERSEARCH")
	viper.AutomaticEnv()

	// Set key replacer to handle nested keys
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read configuration file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, using defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings that are unsafe for the configured environment
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "test":
		return nil
	}

	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("auth.jwt_secret must be set to a non-default value in %s", c.Environment)
	}
	return nil
}

package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/database"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
)

// TestConfig provides test configuration settings
type TestConfig struct {
	*config.Config
	TestDir string
	DBPath  string
}

// SetupTestDB creates a migrated SQLite database in a temporary directory
func SetupTestDB(t testing.TB) *database.DB {
	t.Helper()

	testDir := t.TempDir()
	dbPath := filepath.Join(testDir, "test.db")

	db, err := database.Initialize(config.DatabaseConfig{Path: dbPath, MaxOpenConns: 4})
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestRedis starts a Redis container for testing. The test is skipped
// when no container runtime is reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := startContainer(ctx, req)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	mappedPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port()),
	})

	err = redisClient.Ping(ctx).Err()
	require.NoError(t, err)

	t.Cleanup(func() {
		redisClient.Close()
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	return redisClient
}

// startContainer converts a missing Docker daemon, which testcontainers
// reports by panicking in some versions, into an error
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}

// GetTestConfig returns a configuration for testing
func GetTestConfig(t *testing.T) *TestConfig {
	t.Helper()

	testDir := t.TempDir()
	dbPath := filepath.Join(testDir, "test.db")

	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Port:                8080,
			Host:                "localhost",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
			IdleTimeoutSeconds:  120,
		},
		Database: config.DatabaseConfig{
			Path: dbPath,
		},
		Redis: config.RedisConfig{
			Host:   "localhost",
			Port:   6379,
			DB:     1, // Use DB 1 for tests
			Prefix: "test-specialties",
		},
		Log: config.LogConfig{
			Level: "debug",
		},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret-key-for-testing-only",
			TokenDuration: 24,
		},
		Search: config.SearchConfig{
			CacheTTLSeconds: 300,
			CacheBackend:    "memory",
			DebounceMS:      10,
			DefaultLimit:    20,
			MaxLimit:        100,
			OverfetchFactor: 5,
			Strategies:      []string{"view", "table", "minimal"},
		},
		Supabase: config.SupabaseConfig{
			Enabled:           false, // Disabled by default in tests
			BaseURL:           "http://localhost:54321",
			ViewName:          "trainer_specialties_mv",
			TableName:         "trainers",
			RefreshRPC:        "refresh_trainer_specialties_mv",
			StatsView:         "specialty_stats",
			TimeoutSeconds:    5,
			RateLimitRequests: 100,
			RateLimitWindow:   1,
		},
	}

	return &TestConfig{
		Config:  cfg,
		TestDir: testDir,
		DBPath:  dbPath,
	}
}

// SetupTestLogger creates a logger for testing. Output is discarded unless
// tests run verbosely.
func SetupTestLogger(t testing.TB) *logrus.Logger {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		TimestampFormat: time.RFC3339,
	})

	if testing.Verbose() {
		logger.SetOutput(os.Stdout)
	} else {
		logger.SetOutput(io.Discard)
	}

	return logger
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		if condition() {
			return
		}
		select {
		case <-ticker.C:
		case <-timeoutCh:
			t.Fatalf("Timeout waiting for condition: %s", message)
		}
	}
}

// FixtureTrainers returns the three-trainer dataset used across search tests:
// A has crossfit, B has yoga, C has musculacao and yoga.
func FixtureTrainers() []*models.TrainerRow {
	return []*models.TrainerRow{
		{
			ID:          "a",
			Slug:        "ana-crossfit",
			Name:        "Ana",
			Specialties: models.JSONList{"Crossfit"},
			Fields:      models.JSONObject{"profilePhoto": "https://cdn.example/ana.png"},
		},
		{
			ID:          "b",
			Slug:        "bruno-yoga",
			Name:        "Bruno",
			Specialties: models.JSONList{"yoga"},
			Fields:      models.JSONObject{"avatar": "https://cdn.example/bruno.png"},
		},
		{
			ID:          "c",
			Slug:        "carla-forca",
			Name:        "Carla",
			Specialties: models.JSONList{"musculacao", "Yoga"},
			Fields:      models.JSONObject{"profile_photo": "https://cdn.example/carla.png"},
		},
	}
}

// TestDataSeeder loads trainer fixtures into a test database
type TestDataSeeder struct {
	Repo   *repositories.TrainerRepository
	Logger *logrus.Logger
}

// NewTestDataSeeder creates a new test data seeder
func NewTestDataSeeder(db *database.DB, logger *logrus.Logger) *TestDataSeeder {
	return &TestDataSeeder{
		Repo:   repositories.NewTrainerRepository(db.DB),
		Logger: logger,
	}
}

// SeedTrainers upserts trainers and rebuilds the aggregate view
func (s *TestDataSeeder) SeedTrainers(t testing.TB, trainers []*models.TrainerRow) {
	t.Helper()

	ctx := context.Background()
	for _, trainer := range trainers {
		require.NoError(t, s.Repo.Upsert(ctx, trainer))
	}
	require.NoError(t, s.Repo.RefreshView(ctx))
	s.Logger.Debugf("Seeded %d trainers", len(trainers))
}

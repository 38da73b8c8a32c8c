package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/cache"
	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/database"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/redis"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
	"github.com/joaohlviana/99novo-sub001/internal/search"
	"github.com/joaohlviana/99novo-sub001/internal/supabase"
)

// Version is reported by the health and metrics endpoints
const Version = "1.0.0"

// backendCheckTimeout bounds the backend read done by HealthCheck
const backendCheckTimeout = 5 * time.Second

// Backend names reported by HealthCheck and GetMetrics
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Container holds all the application services and manages their lifecycle
type Container struct {
	// Configuration
	config *config.Config
	logger *logrus.Logger

	// Infrastructure
	db          *database.DB
	redisClient *redis.Client

	// Search backend
	backendName string
	backend     repositories.SpecialtyBackend
	trainerRepo *repositories.TrainerRepository

	// Search services
	resultCache   cache.Store
	cacheName     string
	monitor       *search.PerformanceMonitor
	chain         *search.Chain
	searchService *search.Service

	// Auth services
	jwtManager     *auth.JWTManager
	passwordHasher *auth.PasswordHasher
	adminAuth      *auth.AdminAuthenticator

	// WebSocket hub for live search sessions
	wsHub *WebSocketHub

	startedAt time.Time
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewContainer creates a new service container. db is required for the
// sqlite backend; redisClient may be nil.
func NewContainer(db *database.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		startedAt:   time.Now(),
	}

	if err := container.initializeBackend(); err != nil {
		return nil, err
	}

	container.initializeCache()

	if err := container.initializeSearch(); err != nil {
		return nil, err
	}

	container.initializeAuth()

	container.wsHub = NewWebSocketHub(logger, container.NewSearchController)

	return container, nil
}

// Start starts all background services
func (c *Container) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Starting service container")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.wsHub.Start()
	}()

	c.logger.Info("Service container started successfully")
}

// Stop gracefully stops all services
func (c *Container) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("Stopping service container")

	if c.wsHub != nil {
		c.wsHub.Stop()
	}

	c.wg.Wait()

	c.logger.Info("Service container stopped")
}

// NewSearchController creates a debounced controller over the shared search
// service. The caller must Close it.
func (c *Container) NewSearchController() *search.Controller {
	return search.NewController(c.searchService, c.config.Search.Debounce(), c.logger)
}

// RefreshView refreshes the aggregate view and notifies live sessions
func (c *Container) RefreshView(ctx context.Context) error {
	if err := c.searchService.RefreshMaterializedView(ctx); err != nil {
		return err
	}
	c.wsHub.BroadcastViewRefreshed()
	return nil
}

// GetSearchService returns the search service
func (c *Container) GetSearchService() *search.Service {
	return c.searchService
}

// GetTrainerRepository returns the local trainer repository. It is nil when
// the supabase backend is active.
func (c *Container) GetTrainerRepository() *repositories.TrainerRepository {
	return c.trainerRepo
}

// GetJWTManager returns the JWT manager
func (c *Container) GetJWTManager() *auth.JWTManager {
	return c.jwtManager
}

// GetPasswordHasher returns the password hasher
func (c *Container) GetPasswordHasher() *auth.PasswordHasher {
	return c.passwordHasher
}

// GetAdminAuthenticator returns the admin authenticator
func (c *Container) GetAdminAuthenticator() *auth.AdminAuthenticator {
	return c.adminAuth
}

// GetWebSocketHub returns the WebSocket hub
func (c *Container) GetWebSocketHub() *WebSocketHub {
	return c.wsHub
}

// GetPerformanceMonitor returns the strategy performance monitor
func (c *Container) GetPerformanceMonitor() *search.PerformanceMonitor {
	return c.monitor
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// initializeBackend selects the PostgREST client or the local repository
func (c *Container) initializeBackend() error {
	if c.config.Supabase.Enabled {
		c.backend = supabase.NewClient(c.config.Supabase, c.logger)
		c.backendName = BackendSupabase
		c.logger.Infof("Search backend: supabase at %s", c.config.Supabase.BaseURL)
		return nil
	}

	if c.db == nil {
		return fmt.Errorf("sqlite backend requires a database")
	}
	c.trainerRepo = repositories.NewTrainerRepository(c.db.DB)
	c.backend = c.trainerRepo
	c.backendName = BackendSQLite
	c.logger.Info("Search backend: sqlite")
	return nil
}

// initializeCache creates the result cache. Redis is used only when
// configured and a client is available.
func (c *Container) initializeCache() {
	ttl := c.config.Search.CacheTTL()

	if c.config.Search.CacheBackend == "redis" {
		if c.redisClient != nil {
			c.resultCache = cache.NewRedisCache(c.redisClient, c.config.Redis.Prefix, ttl, c.logger)
			c.cacheName = "redis"
			return
		}
		c.logger.Warn("Redis cache requested but Redis is unavailable, using in-memory cache")
	}

	c.resultCache = cache.NewMemoryCache(ttl, nil)
	c.cacheName = "memory"
}

// initializeSearch builds the strategy chain and the search service
func (c *Container) initializeSearch() error {
	strategies, err := search.BuildStrategies(c.config.Search.Strategies, c.backend, c.config.Search.OverfetchFactor)
	if err != nil {
		return fmt.Errorf("failed to build search strategies: %w", err)
	}

	c.monitor = search.NewPerformanceMonitor(c.logger, true)
	c.chain = search.NewChain(c.logger, c.monitor, strategies...)

	limits := search.Limits{
		Default: c.config.Search.DefaultLimit,
		Max:     c.config.Search.MaxLimit,
	}
	c.searchService = search.NewService(c.chain, c.resultCache, c.backend, limits, c.logger)

	c.logger.Infof("Search strategies: %v, cache: %s (ttl %s)", c.chain.Strategies(), c.cacheName, c.config.Search.CacheTTL())
	return nil
}

// initializeAuth creates the admin token services
func (c *Container) initializeAuth() {
	c.jwtManager = auth.NewJWTManager(c.config.Auth.JWTSecret, c.config.Auth.TokenDuration)
	c.passwordHasher = auth.NewPasswordHasher()
	c.adminAuth = auth.NewAdminAuthenticator(c.passwordHasher, c.config.Auth.AdminPasswordHash, c.jwtManager)

	if !c.adminAuth.Enabled() {
		c.logger.Warn("No admin password hash configured, view refresh over HTTP is disabled")
	}
}

// HealthCheck performs a health check on all services
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	services := map[string]interface{}{}
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
		"services":  services,
	}

	if c.db != nil {
		if err := c.db.Health(ctx); err != nil {
			services["database"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			health["status"] = "degraded"
		} else {
			services["database"] = map[string]interface{}{"status": "healthy"}
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Health(ctx); err != nil {
			services["redis"] = map[string]interface{}{"status": "unhealthy", "error": err.Error()}
			health["status"] = "degraded"
		} else {
			services["redis"] = map[string]interface{}{"status": "healthy"}
		}
	}

	searchHealth := map[string]interface{}{
		"status":     "healthy",
		"backend":    c.backendName,
		"cache":      c.cacheName,
		"strategies": c.chain.Strategies(),
	}
	if err := c.checkBackend(ctx); err != nil {
		searchHealth["status"] = "unhealthy"
		searchHealth["error"] = err.Error()
		health["status"] = "degraded"
	}
	services["search"] = searchHealth

	return health
}

// checkBackend reads one trainer row from the search backend
func (c *Container) checkBackend(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	_, _, err := c.backend.QueryTable(checkCtx, models.NewRange(0, 1), false)
	return err
}

// GetMetrics returns application metrics
func (c *Container) GetMetrics(ctx context.Context) map[string]interface{} {
	strategies := map[string]interface{}{}
	for name, m := range c.monitor.GetMetrics() {
		strategies[name] = map[string]interface{}{
			"count":          m.Count,
			"error_count":    m.ErrorCount,
			"avg_time_ms":    float64(m.AverageTime().Microseconds()) / 1000,
			"min_time_ms":    float64(m.MinTime.Microseconds()) / 1000,
			"max_time_ms":    float64(m.MaxTime.Microseconds()) / 1000,
			"last_execution": m.LastExecution.UTC().Format(time.RFC3339),
		}
	}

	metrics := map[string]interface{}{
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"uptime":             time.Since(c.startedAt).Round(time.Second).String(),
		"version":            Version,
		"backend":            c.backendName,
		"cache":              c.cacheName,
		"websocket_sessions": c.wsHub.GetClientCount(),
		"strategies":         strategies,
	}

	if c.db != nil {
		if version, err := c.db.SchemaVersion(ctx); err == nil {
			metrics["schema_version"] = version
		}
	}

	if c.trainerRepo != nil {
		if count, err := c.trainerRepo.Count(ctx); err == nil {
			metrics["trainers"] = count
		}
	}

	return metrics
}

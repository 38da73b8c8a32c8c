package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/middleware"
	"github.com/joaohlviana/99novo-sub001/internal/server/handlers"
	"github.com/joaohlviana/99novo-sub001/internal/services"
)

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config    *config.Config
	container *services.Container
	router    *gin.Engine
	server    *http.Server
	logger    *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, container *services.Container) *HTTPServer {
	// Set Gin mode based on configuration
	switch cfg.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	logger := container.GetLogger()

	server := &HTTPServer{
		config:    cfg,
		container: container,
		router:    router,
		logger:    logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	return server
}

// Handler returns the configured router
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Infof("Starting HTTP server on %s", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// setupMiddleware configures middleware
func (s *HTTPServer) setupMiddleware() {
	s.router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006-01-02 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	s.router.Use(gin.Recovery())

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Client-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.router.Use(middleware.RequestID())

	if s.config.Server.RateLimitRPS > 0 {
		limiter := middleware.NewIPRateLimiter(s.config.Server.RateLimitRPS, s.config.Server.RateLimitBurst)
		s.router.Use(middleware.RateLimit(limiter))
	}
}

// setupRoutes configures all API routes
func (s *HTTPServer) setupRoutes() {
	s.router.GET("/health", s.healthCheckHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/metrics/json", s.metricsHandler)

	v1 := s.router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authHandler := handlers.NewAuthHandler(s.container)
		authGroup.POST("/token", authHandler.Token)
		authGroup.POST("/refresh", authHandler.RefreshToken)
	}

	v1.GET("/ws", s.websocketHandler)

	specialtiesGroup := v1.Group("/specialties")
	{
		specialtiesHandler := handlers.NewSpecialtiesHandler(s.container)
		specialtiesGroup.GET("/search", specialtiesHandler.Search)
		specialtiesGroup.GET("/suggestions", specialtiesHandler.GetSuggestions)
		specialtiesGroup.GET("/stats", specialtiesHandler.GetStats)
		specialtiesGroup.POST("/refresh", middleware.AdminRequired(s.container.GetJWTManager()), specialtiesHandler.Refresh)
	}
}

// healthCheckHandler handles health check requests
func (s *HTTPServer) healthCheckHandler(c *gin.Context) {
	health := s.container.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}

// metricsHandler returns the container metrics as JSON
func (s *HTTPServer) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.container.GetMetrics(c.Request.Context()))
}

// websocketHandler upgrades to a live search session
func (s *HTTPServer) websocketHandler(c *gin.Context) {
	clientID := c.GetHeader("X-Client-ID")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	s.container.GetWebSocketHub().HandleWebSocket(c.Writer, c.Request, clientID)
}

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/database"
	"github.com/joaohlviana/99novo-sub001/internal/redis"
	"github.com/joaohlviana/99novo-sub001/internal/server"
	"github.com/joaohlviana/99novo-sub001/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Log.Level)

	logrus.Info("Starting trainer search server...")

	// The local database also backs the sqlite search backend
	var db *database.DB
	if !cfg.Supabase.Enabled {
		db, err = database.Initialize(cfg.Database)
		if err != nil {
			logrus.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
	}

	// Redis is optional; the container falls back to the in-memory cache
	var redisClient *redis.Client
	if cfg.Search.CacheBackend == "redis" {
		redisClient, err = redis.Initialize(cfg.Redis)
		if err != nil {
			logrus.Warnf("Redis unavailable: %v", err)
		} else {
			defer redisClient.Close()
		}
	}

	serviceContainer, err := services.NewContainer(db, redisClient, cfg, logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("Failed to initialize services: %v", err)
	}

	httpServer := server.NewHTTPServer(cfg, serviceContainer)

	logrus.Info("Starting background services...")
	serviceContainer.Start()

	go func() {
		if err := httpServer.Start(); err != nil {
			logrus.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down trainer search server...")

	if err := httpServer.Shutdown(); err != nil {
		logrus.Errorf("Error during HTTP server shutdown: %v", err)
	}

	serviceContainer.Stop()
	logrus.Info("Trainer search server stopped")
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)

	logrus.Info("Logging initialized")
}

package search

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	strategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainersearch_strategy_attempts_total",
		Help: "Search strategy attempts by strategy and result",
	}, []string{"strategy", "result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainersearch_cache_lookups_total",
		Help: "Result cache lookups by result",
	}, []string{"result"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trainersearch_search_duration_seconds",
		Help:    "Strategy chain execution time by serving strategy",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	viewRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainersearch_view_refreshes_total",
		Help: "Materialized view refreshes by result",
	}, []string{"result"})
)

// slowOperationThreshold is the duration above which an operation is logged
const slowOperationThreshold = 2 * time.Second

// PerformanceMonitor keeps per-operation timing statistics
type PerformanceMonitor struct {
	mu      sync.RWMutex
	metrics map[string]*PerformanceMetric
	logger  *logrus.Logger
	enabled bool
}

// PerformanceMetric holds timing statistics for one operation
type PerformanceMetric struct {
	Count         int64         `json:"count"`
	ErrorCount    int64         `json:"error_count"`
	TotalTime     time.Duration `json:"total_time_ns"`
	MinTime       time.Duration `json:"min_time_ns"`
	MaxTime       time.Duration `json:"max_time_ns"`
	LastExecution time.Time     `json:"last_execution"`
}

// AverageTime returns the mean duration of the operation
func (m PerformanceMetric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *logrus.Logger, enabled bool) *PerformanceMonitor {
	return &PerformanceMonitor{
		metrics: make(map[string]*PerformanceMetric),
		logger:  logger,
		enabled: enabled,
	}
}

// RecordMetric records a performance metric
func (pm *PerformanceMonitor) RecordMetric(operation string, duration time.Duration, err error) {
	if !pm.enabled {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	metric, exists := pm.metrics[operation]
	if !exists {
		metric = &PerformanceMetric{
			MinTime: duration,
			MaxTime: duration,
		}
		pm.metrics[operation] = metric
	}

	metric.Count++
	metric.TotalTime += duration
	metric.LastExecution = time.Now()

	if duration < metric.MinTime {
		metric.MinTime = duration
	}
	if duration > metric.MaxTime {
		metric.MaxTime = duration
	}

	if err != nil {
		metric.ErrorCount++
	}

	if duration > slowOperationThreshold {
		pm.logger.Warnf("Slow %s operation: %v", operation, duration)
	}
}

// GetMetrics returns a snapshot of the current metrics
func (pm *PerformanceMonitor) GetMetrics() map[string]PerformanceMetric {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]PerformanceMetric, len(pm.metrics))
	for k, v := range pm.metrics {
		result[k] = *v
	}
	return result
}

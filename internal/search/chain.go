package search

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// Chain tries its strategies in order and returns the first success. Strategy
// errors never reach the caller; when every strategy fails the outcome carries
// a single summarized error.
type Chain struct {
	strategies []Strategy
	monitor    *PerformanceMonitor
	logger     *logrus.Logger
}

// NewChain creates a chain over strategies. monitor may be nil.
func NewChain(logger *logrus.Logger, monitor *PerformanceMonitor, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		monitor:    monitor,
		logger:     logger,
	}
}

// Strategies returns the strategy names in attempt order
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Execute resolves normalized filters. The returned outcome is never nil.
func (c *Chain) Execute(ctx context.Context, filters models.SearchFilters) *models.SearchOutcome {
	for i, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			c.logger.Debugf("Search abandoned before %s strategy: %v", strategy.Name(), err)
			return failedOutcome("search canceled")
		}

		start := time.Now()
		outcome, err := strategy.Attempt(ctx, filters)
		if err == nil && outcome == nil {
			err = errors.New("strategy returned no outcome")
		}
		c.record(strategy.Name(), time.Since(start), err)

		if err != nil {
			entry := c.logger.WithFields(logrus.Fields{
				"strategy": strategy.Name(),
				"attempt":  i + 1,
			})
			if models.IsRecoverable(err) {
				entry.Warnf("Search strategy failed, falling through: %v", err)
			} else {
				entry.Errorf("Search strategy failed unexpectedly, falling through: %v", err)
			}
			continue
		}

		if outcome.Data == nil {
			outcome.Data = []models.TrainerSearchResult{}
		}
		outcome.Error = nil
		outcome.Source = strategy.Name()
		outcome.Cached = false

		if i > 0 {
			c.logger.Infof("Search served by fallback strategy %s (%d results)", strategy.Name(), len(outcome.Data))
		}
		return outcome
	}

	c.logger.Errorf("All %d search strategies failed", len(c.strategies))
	return failedOutcome(models.ErrExhaustedStrategies.Error())
}

func (c *Chain) record(strategy string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	strategyAttempts.WithLabelValues(strategy, result).Inc()

	if c.monitor != nil {
		c.monitor.RecordMetric("strategy_"+strategy, d, err)
	}
}

func failedOutcome(msg string) *models.SearchOutcome {
	return &models.SearchOutcome{
		Data:  []models.TrainerSearchResult{},
		Count: 0,
		Error: &msg,
	}
}

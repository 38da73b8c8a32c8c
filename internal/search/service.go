package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/joaohlviana/99novo-sub001/internal/cache"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
)

// SharedExecutionTimeout bounds one strategy chain run shared by concurrent
// callers
const SharedExecutionTimeout = 30 * time.Second

// Suggestion limits: a zero limit takes the default, larger ones are clamped
// to the max
const (
	DefaultSuggestionLimit = 10
	MaxSuggestionLimit     = 50
)

// Maintenance is the part of a backend used outside the strategy chain
type Maintenance interface {
	repositories.ViewRefresher
	repositories.SpecialtyStatsAccessor
}

// Service resolves specialty searches through the result cache and the
// strategy chain. It is safe for concurrent use and shared by every
// Controller.
type Service struct {
	chain   *Chain
	cache   cache.Store
	backend Maintenance
	limits  Limits
	group   singleflight.Group
	logger  *logrus.Logger
}

// NewService creates a new search service
func NewService(
	chain *Chain,
	store cache.Store,
	backend Maintenance,
	limits Limits,
	logger *logrus.Logger,
) *Service {
	return &Service{
		chain:   chain,
		cache:   store,
		backend: backend,
		limits:  limits,
		logger:  logger,
	}
}

// Normalize returns the canonical form of filters under the service limits
func (s *Service) Normalize(filters models.SearchFilters) (models.SearchFilters, error) {
	return NormalizeFilters(filters, s.limits)
}

// Lookup returns the cached outcome for normalized filters
func (s *Service) Lookup(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, bool) {
	entry, ok := s.cache.Get(ctx, cache.Key(filters))
	if !ok {
		cacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	cacheLookups.WithLabelValues("hit").Inc()
	return &models.SearchOutcome{
		Data:   entry.Data,
		Count:  entry.Count,
		Source: entry.Source,
		Cached: true,
	}, true
}

// Execute runs the strategy chain for normalized filters and caches a
// successful outcome. Concurrent calls with the same filters share one run.
// The shared run is detached from every caller's cancellation and bounded by
// SharedExecutionTimeout; a caller whose ctx ends stops waiting and gets a
// failed outcome of its own.
func (s *Service) Execute(ctx context.Context, filters models.SearchFilters) *models.SearchOutcome {
	key := cache.Key(filters)

	results := s.group.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedExecutionTimeout)
		defer cancel()

		start := time.Now()
		outcome := s.chain.Execute(runCtx, filters)

		source := outcome.Source
		if outcome.Failed() {
			source = "none"
		}
		searchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

		if !outcome.Failed() {
			s.cache.Put(runCtx, key, outcome)
		}
		return outcome, nil
	})

	select {
	case res := <-results:
		if res.Shared {
			s.logger.Debugf("Search %s shared an in-flight execution", key)
		}
		// Each caller gets its own outcome value
		outcome := *res.Val.(*models.SearchOutcome)
		return &outcome
	case <-ctx.Done():
		s.logger.Debugf("Search %s abandoned by its caller: %v", key, ctx.Err())
		return failedOutcome(fmt.Sprintf("search canceled: %v", ctx.Err()))
	}
}

// Search normalizes filters and resolves them from the cache or the chain.
// Backend failures are reported in the outcome; the error is only set for
// invalid filters.
func (s *Service) Search(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error) {
	normalized, err := s.Normalize(filters)
	if err != nil {
		return nil, err
	}

	if outcome, ok := s.Lookup(ctx, normalized); ok {
		return outcome, nil
	}
	return s.Execute(ctx, normalized), nil
}

// RefreshMaterializedView rebuilds the aggregate view. The cache is cleared
// only when the refresh succeeds.
func (s *Service) RefreshMaterializedView(ctx context.Context) error {
	if err := s.backend.RefreshView(ctx); err != nil {
		viewRefreshes.WithLabelValues("failure").Inc()
		s.logger.Errorf("Materialized view refresh failed: %v", err)
		return fmt.Errorf("%w: %v", models.ErrRefreshFailed, err)
	}
	viewRefreshes.WithLabelValues("success").Inc()

	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("view refreshed but cache clear failed: %w", err)
	}

	s.logger.Info("Materialized view refreshed, search cache cleared")
	return nil
}

// Suggest returns up to limit known specialties starting with partial
func (s *Service) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	partial = strings.ToLower(strings.TrimSpace(partial))
	if partial == "" {
		return nil, fmt.Errorf("%w: suggestion prefix is required", models.ErrInvalidInput)
	}

	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	if limit > MaxSuggestionLimit {
		limit = MaxSuggestionLimit
	}

	return s.backend.SuggestSpecialties(ctx, partial, limit)
}

// GetStats returns how many trainers carry each specialty
func (s *Service) GetStats(ctx context.Context) ([]models.SpecialtyStat, error) {
	return s.backend.SpecialtyStats(ctx)
}

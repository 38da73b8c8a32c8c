package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
)

// Strategy names, also reported as SearchOutcome.Source
const (
	StrategyView    = "view"
	StrategyTable   = "table"
	StrategyMinimal = "minimal"
)

// DefaultStrategyOrder is the fallback order from fastest to most tolerant
var DefaultStrategyOrder = []string{StrategyView, StrategyTable, StrategyMinimal}

// Strategy is one way of resolving normalized filters into a page of results
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error)
}

// ViewStrategy queries the indexed aggregate view, which evaluates the match
// mode natively
type ViewStrategy struct {
	accessor repositories.SpecialtyViewAccessor
}

// NewViewStrategy creates the aggregate view strategy
func NewViewStrategy(accessor repositories.SpecialtyViewAccessor) *ViewStrategy {
	return &ViewStrategy{accessor: accessor}
}

// Name implements Strategy
func (s *ViewStrategy) Name() string { return StrategyView }

// Attempt implements Strategy
func (s *ViewStrategy) Attempt(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error) {
	pred := models.TagPredicate{}
	if filters.HasTags() {
		pred.Tags = filters.Specialties
		pred.Op = models.PredicateOverlaps
		if filters.MatchMode == models.MatchAll {
			pred.Op = models.PredicateContains
		}
	}

	rows, count, err := s.accessor.QueryView(ctx, pred, models.NewRange(filters.Offset, filters.Limit))
	if err != nil {
		return nil, err
	}

	return &models.SearchOutcome{
		Data:  NormalizeRows(rows),
		Count: count,
	}, nil
}

// TableStrategy queries the raw trainers table. With a tag filter it reads an
// over-provisioned window from the start of the table, filters it in memory
// and pages the filtered set, so Count is the number of matches inside that
// window.
type TableStrategy struct {
	accessor  repositories.TrainerTableAccessor
	overfetch int
}

// NewTableStrategy creates the raw table strategy. overfetch multiplies the
// end of the requested page to size the window read when filtering.
func NewTableStrategy(accessor repositories.TrainerTableAccessor, overfetch int) *TableStrategy {
	if overfetch < 1 {
		overfetch = 1
	}
	return &TableStrategy{accessor: accessor, overfetch: overfetch}
}

// Name implements Strategy
func (s *TableStrategy) Name() string { return StrategyTable }

// Attempt implements Strategy
func (s *TableStrategy) Attempt(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error) {
	if !filters.HasTags() {
		rows, count, err := s.accessor.QueryTable(ctx, models.NewRange(filters.Offset, filters.Limit), false)
		if err != nil {
			return nil, err
		}
		return &models.SearchOutcome{Data: NormalizeRows(rows), Count: count}, nil
	}

	window := (filters.Offset + filters.Limit) * s.overfetch
	rows, _, err := s.accessor.QueryTable(ctx, models.NewRange(0, window), true)
	if err != nil {
		return nil, err
	}

	matched := ApplyFilter(NormalizeRows(rows), filters)
	return &models.SearchOutcome{
		Data:  page(matched, filters.Offset, filters.Limit),
		Count: len(matched),
	}, nil
}

// MinimalStrategy reads the first page of the raw table without any backend
// predicate and filters it in memory. The offset is ignored.
type MinimalStrategy struct {
	accessor repositories.TrainerTableAccessor
}

// NewMinimalStrategy creates the last resort strategy
func NewMinimalStrategy(accessor repositories.TrainerTableAccessor) *MinimalStrategy {
	return &MinimalStrategy{accessor: accessor}
}

// Name implements Strategy
func (s *MinimalStrategy) Name() string { return StrategyMinimal }

// Attempt implements Strategy
func (s *MinimalStrategy) Attempt(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error) {
	rows, _, err := s.accessor.QueryTable(ctx, models.NewRange(0, filters.Limit), false)
	if err != nil {
		return nil, err
	}

	matched := ApplyFilter(NormalizeRows(rows), filters)
	return &models.SearchOutcome{Data: matched, Count: len(matched)}, nil
}

// BuildStrategies creates strategies over backend in the given order
func BuildStrategies(names []string, backend repositories.SpecialtyBackend, overfetch int) ([]Strategy, error) {
	if len(names) == 0 {
		names = DefaultStrategyOrder
	}

	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case StrategyView:
			strategies = append(strategies, NewViewStrategy(backend))
		case StrategyTable:
			strategies = append(strategies, NewTableStrategy(backend, overfetch))
		case StrategyMinimal:
			strategies = append(strategies, NewMinimalStrategy(backend))
		default:
			return nil, fmt.Errorf("%w: unknown search strategy %q", models.ErrInvalidInput, name)
		}
	}
	return strategies, nil
}

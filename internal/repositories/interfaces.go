package repositories

import (
	"context"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// SpecialtyViewAccessor reads the indexed aggregate view. Rows carry the tag
// array as a native set so contains/overlaps predicates run in the backend.
type SpecialtyViewAccessor interface {
	QueryView(ctx context.Context, pred models.TagPredicate, rng models.Range) ([]*models.TrainerRow, int, error)
}

// TrainerTableAccessor reads the raw trainers table. When requireTags is set
// only rows with a non-empty specialties field are returned.
type TrainerTableAccessor interface {
	QueryTable(ctx context.Context, rng models.Range, requireTags bool) ([]*models.TrainerRow, int, error)
}

// ViewRefresher rebuilds the aggregate view from the raw table
type ViewRefresher interface {
	RefreshView(ctx context.Context) error
}

// SpecialtyStatsAccessor exposes the tag vocabulary
type SpecialtyStatsAccessor interface {
	SpecialtyStats(ctx context.Context) ([]models.SpecialtyStat, error)
	SuggestSpecialties(ctx context.Context, prefix string, limit int) ([]string, error)
}

// SpecialtyBackend is a store able to serve every search strategy
type SpecialtyBackend interface {
	SpecialtyViewAccessor
	TrainerTableAccessor
	ViewRefresher
	SpecialtyStatsAccessor
}

// TrainerStore manages trainer records in the local store
type TrainerStore interface {
	Upsert(ctx context.Context, trainer *models.TrainerRow) error
	GetByID(ctx context.Context, id string) (*models.TrainerRow, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

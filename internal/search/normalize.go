package search

import (
	"fmt"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// avatarFields lists the legacy photo columns in priority order
var avatarFields = []string{"profilePhoto", "avatar", "profile_photo"}

// Limits bounds the page size of a search
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits matches the configuration defaults
var DefaultLimits = Limits{Default: 20, Max: 100}

// NormalizeFilters returns the canonical form of f: specialties trimmed,
// lower-cased, deduplicated and sorted, match mode upper-cased and the limit
// clamped to [1, limits.Max]. A zero limit takes limits.Default.
func NormalizeFilters(f models.SearchFilters, limits Limits) (models.SearchFilters, error) {
	mode, err := models.ParseMatchMode(string(f.MatchMode))
	if err != nil {
		return models.SearchFilters{}, err
	}
	if f.Offset < 0 {
		return models.SearchFilters{}, fmt.Errorf("%w: offset must not be negative", models.ErrInvalidInput)
	}
	if f.Limit < 0 {
		return models.SearchFilters{}, fmt.Errorf("%w: limit must not be negative", models.ErrInvalidInput)
	}

	if limits.Default <= 0 {
		limits.Default = DefaultLimits.Default
	}
	if limits.Max <= 0 {
		limits.Max = DefaultLimits.Max
	}

	limit := f.Limit
	if limit == 0 {
		limit = limits.Default
	}
	if limit > limits.Max {
		limit = limits.Max
	}

	return models.SearchFilters{
		Specialties: models.CanonicalSpecialties(f.Specialties),
		MatchMode:   mode,
		Limit:       limit,
		Offset:      f.Offset,
	}, nil
}

// NormalizeTrainer maps a backend row to the public result shape. The avatar
// is the first non-empty string among avatarFields.
func NormalizeTrainer(row *models.TrainerRow) models.TrainerSearchResult {
	raw := make([]interface{}, len(row.Specialties))
	copy(raw, row.Specialties)

	result := models.TrainerSearchResult{
		ID:              row.ID,
		Slug:            row.Slug,
		Name:            row.Name,
		SpecialtiesRaw:  raw,
		SpecialtiesText: models.DeriveSpecialtiesText(raw),
	}

	for _, field := range avatarFields {
		if s, ok := row.Fields[field].(string); ok && s != "" {
			avatar := s
			result.Avatar = &avatar
			break
		}
	}

	return result
}

// NormalizeRows maps every row with NormalizeTrainer
func NormalizeRows(rows []*models.TrainerRow) []models.TrainerSearchResult {
	results := make([]models.TrainerSearchResult, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		results = append(results, NormalizeTrainer(row))
	}
	return results
}

package search

import (
	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// Matches reports whether a result satisfies the specialty filter:
// ALL needs every requested tag, ANY needs one, no tags keeps everything.
func Matches(result *models.TrainerSearchResult, filters models.SearchFilters) bool {
	return matchesSet(result, models.CanonicalSpecialties(filters.Specialties), filters.MatchMode)
}

// ApplyFilter keeps the results that satisfy the filter, preserving order
func ApplyFilter(results []models.TrainerSearchResult, filters models.SearchFilters) []models.TrainerSearchResult {
	requested := models.CanonicalSpecialties(filters.Specialties)
	if len(requested) == 0 {
		return results
	}

	kept := make([]models.TrainerSearchResult, 0, len(results))
	for i := range results {
		if matchesSet(&results[i], requested, filters.MatchMode) {
			kept = append(kept, results[i])
		}
	}
	return kept
}

func matchesSet(result *models.TrainerSearchResult, requested []string, mode models.MatchMode) bool {
	if len(requested) == 0 {
		return true
	}

	have := make(map[string]struct{}, len(result.SpecialtiesText))
	for _, tag := range result.SpecialtiesText {
		have[tag] = struct{}{}
	}

	if mode == models.MatchAll {
		for _, tag := range requested {
			if _, ok := have[tag]; !ok {
				return false
			}
		}
		return true
	}

	for _, tag := range requested {
		if _, ok := have[tag]; ok {
			return true
		}
	}
	return false
}

// page returns the [offset, offset+limit) window of results
func page(results []models.TrainerSearchResult, offset, limit int) []models.TrainerSearchResult {
	if offset >= len(results) {
		return []models.TrainerSearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

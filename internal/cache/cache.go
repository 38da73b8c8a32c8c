package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// DefaultTTL is how long a search page stays fresh
const DefaultTTL = 5 * time.Minute

// Store caches fully filtered search pages by canonical filter key.
// Get reports absent entries and backend failures the same way: a miss.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, bool)
	Put(ctx context.Context, key string, outcome *models.SearchOutcome)
	Clear(ctx context.Context) error
}

type canonicalFilters struct {
	Specialties []string         `json:"specialties"`
	MatchMode   models.MatchMode `json:"matchMode"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
}

// Key derives the cache key of a filter set. Two filter sets share a key
// exactly when they have the same canonical form.
func Key(filters models.SearchFilters) string {
	mode := models.MatchMode(strings.ToUpper(string(filters.MatchMode)))
	if mode == "" {
		mode = models.MatchAny
	}

	data, _ := json.Marshal(canonicalFilters{
		Specialties: models.CanonicalSpecialties(filters.Specialties),
		MatchMode:   mode,
		Limit:       filters.Limit,
		Offset:      filters.Offset,
	})
	return string(data)
}

func newEntry(key string, outcome *models.SearchOutcome, now time.Time) *models.CacheEntry {
	data := make([]models.TrainerSearchResult, len(outcome.Data))
	copy(data, outcome.Data)

	return &models.CacheEntry{
		Key:       key,
		Data:      data,
		Count:     outcome.Count,
		Source:    outcome.Source,
		Timestamp: now,
	}
}

func expired(entry *models.CacheEntry, now time.Time, ttl time.Duration) bool {
	return now.Sub(entry.Timestamp) >= ttl
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joaohlviana/99novo-sub001/internal/middleware"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/search"
	"github.com/joaohlviana/99novo-sub001/internal/services"
)

// SpecialtiesHandler handles the trainer specialties endpoints
type SpecialtiesHandler struct {
	container *services.Container
}

// NewSpecialtiesHandler creates a new specialties handler
func NewSpecialtiesHandler(container *services.Container) *SpecialtiesHandler {
	return &SpecialtiesHandler{
		container: container,
	}
}

// Search resolves a specialties filter. Tags may be given comma-separated,
// repeated, or both: ?specialties=yoga,crossfit&match=ALL&limit=20&offset=0
func (h *SpecialtiesHandler) Search(c *gin.Context) {
	filters := models.SearchFilters{
		Specialties: splitList(c.QueryArray("specialties")),
		MatchMode:   models.MatchMode(c.Query("match")),
	}

	var err error
	if filters.Limit, err = intQuery(c, "limit"); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", "limit must be an integer")
		return
	}
	if filters.Offset, err = intQuery(c, "offset"); err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", "offset must be an integer")
		return
	}

	outcome, err := h.container.GetSearchService().Search(c.Request.Context(), filters)
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	if outcome.Failed() {
		h.container.GetLogger().Warnf("Specialties search failed: %s", *outcome.Error)
		c.JSON(http.StatusServiceUnavailable, outcome)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetSuggestions returns known specialties starting with ?q=
func (h *SpecialtiesHandler) GetSuggestions(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", "Query parameter q is required")
		return
	}

	limit := search.DefaultSuggestionLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > search.MaxSuggestionLimit {
			middleware.Abort(c, http.StatusBadRequest, "Bad Request",
				fmt.Sprintf("limit must be between 1 and %d", search.MaxSuggestionLimit))
			return
		}
		limit = parsed
	}

	suggestions, err := h.container.GetSearchService().Suggest(c.Request.Context(), query, limit)
	if err != nil {
		h.respondBackendError(c, "Suggestions failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":       query,
		"suggestions": suggestions,
	})
}

// GetStats returns the number of trainers per specialty
func (h *SpecialtiesHandler) GetStats(c *gin.Context) {
	stats, err := h.container.GetSearchService().GetStats(c.Request.Context())
	if err != nil {
		h.respondBackendError(c, "Stats failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// Refresh rebuilds the aggregate view and clears cached results. It is
// unavailable while admin login is disabled, whatever token is presented.
func (h *SpecialtiesHandler) Refresh(c *gin.Context) {
	if !h.container.GetAdminAuthenticator().Enabled() {
		middleware.Abort(c, http.StatusServiceUnavailable, "Service Unavailable", "Admin access is disabled")
		return
	}

	if err := h.container.RefreshView(c.Request.Context()); err != nil {
		h.respondBackendError(c, "Refresh failed", err)
		return
	}

	h.container.GetLogger().Infof("Materialized view refreshed by %s", c.GetString(middleware.ContextSubject))
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (h *SpecialtiesHandler) respondBackendError(c *gin.Context, what string, err error) {
	if errors.Is(err, models.ErrInvalidInput) {
		middleware.Abort(c, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	h.container.GetLogger().Errorf("%s: %v", what, err)
	middleware.Abort(c, http.StatusServiceUnavailable, "Service Unavailable", what)
}

// splitList flattens repeated and comma-separated values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

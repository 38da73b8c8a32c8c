package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAdminRouter(tokens *auth.JWTManager) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.POST("/admin", AdminRequired(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subject": c.GetString(ContextSubject),
			"role":    c.GetString(ContextRole),
		})
	})
	return router
}

func TestAdminRequired(t *testing.T) {
	tokens := auth.NewJWTManager("middleware-test-secret", 1)

	adminToken, _, err := tokens.GenerateToken("admin", auth.RoleAdmin)
	require.NoError(t, err)
	viewerToken, _, err := tokens.GenerateToken("someone", "viewer")
	require.NoError(t, err)
	foreignToken, _, err := auth.NewJWTManager("other-secret", 1).GenerateToken("admin", auth.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		detail string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header is required"},
		{"wrong scheme", "Basic " + adminToken, http.StatusUnauthorized, "Invalid authorization header format"},
		{"no token", "Bearer", http.StatusUnauthorized, "Invalid authorization header format"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "Invalid or expired token"},
		{"other secret", "Bearer " + foreignToken, http.StatusUnauthorized, "Invalid or expired token"},
		{"not admin", "Bearer " + viewerToken, http.StatusForbidden, "Admin privileges required"},
		{"admin", "Bearer " + adminToken, http.StatusOK, ""},
		{"lower case scheme", "bearer " + adminToken, http.StatusOK, ""},
	}

	router := newAdminRouter(tokens)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)

			if tt.status == http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "admin", body["subject"])
				assert.Equal(t, auth.RoleAdmin, body["role"])
				return
			}

			var apiErr models.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.detail, apiErr.Detail)
			assert.Equal(t, "/admin", apiErr.Instance)
			assert.Equal(t, w.Header().Get("X-Request-ID"), apiErr.RequestID)
		})
	}
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc", w.Body.String())
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 2)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// Buckets are per IP
	assert.True(t, limiter.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestIPRateLimiter_ForgetsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")
	require.Len(t, limiter.visitors, 2)

	now = now.Add(limiterIdleTimeout + time.Second)
	limiter.Allow("10.0.0.2")
	assert.Len(t, limiter.visitors, 1)
	assert.Contains(t, limiter.visitors, "10.0.0.2")
}

func TestIPRateLimiter_SweepsAtMostOncePerIdleTimeout(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	limiter := NewIPRateLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("a")

	now = start.Add(6 * time.Minute)
	limiter.Allow("b")

	// a is idle and swept; b is recent
	now = start.Add(limiterIdleTimeout + time.Second)
	limiter.Allow("c")
	assert.ElementsMatch(t, []string{"b", "c"}, visitorIPs(limiter))

	// b is idle now, but the last sweep was too recent to run another
	now = start.Add(17 * time.Minute)
	limiter.Allow("c")
	assert.ElementsMatch(t, []string{"b", "c"}, visitorIPs(limiter))

	now = start.Add(2*limiterIdleTimeout + 2*time.Second)
	limiter.Allow("d")
	assert.ElementsMatch(t, []string{"c", "d"}, visitorIPs(limiter))
}

func visitorIPs(l *IPRateLimiter) []string {
	ips := make([]string, 0, len(l.visitors))
	for ip := range l.visitors {
		ips = append(ips, ip)
	}
	return ips
}

func TestRateLimit(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), RateLimit(NewIPRateLimiter(1, 1)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

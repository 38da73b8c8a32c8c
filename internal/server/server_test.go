package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/database"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/server"
	"github.com/joaohlviana/99novo-sub001/internal/server/handlers"
	"github.com/joaohlviana/99novo-sub001/internal/services"
	"github.com/joaohlviana/99novo-sub001/internal/testutil"
)

const adminPassword = "Coach-Admin-Password-1"

type testServer struct {
	http      *testutil.HTTPTestContext
	server    *server.HTTPServer
	container *services.Container
	seeder    *testutil.TestDataSeeder
	db        *database.DB
	cfg       *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

// newTestServerWith lets configure adjust the config before the container is
// built
func newTestServerWith(t *testing.T, configure func(*config.Config)) *testServer {
	t.Helper()

	cfg := testutil.GetTestConfig(t).Config
	logger := testutil.SetupTestLogger(t)
	db := testutil.SetupTestDB(t)

	hasher := auth.NewPasswordHasherWithParams(auth.Argon2Params{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	hash, err := hasher.HashPassword(adminPassword)
	require.NoError(t, err)
	cfg.Auth.AdminPasswordHash = hash
	if configure != nil {
		configure(cfg)
	}

	seeder := testutil.NewTestDataSeeder(db, logger)
	seeder.SeedTrainers(t, testutil.FixtureTrainers())

	container, err := services.NewContainer(db, nil, cfg, logger)
	require.NoError(t, err)
	container.Start()
	t.Cleanup(container.Stop)

	srv := server.NewHTTPServer(cfg, container)

	return &testServer{
		http:      testutil.NewHTTPTestContext(t, srv.Handler(), cfg),
		server:    srv,
		container: container,
		seeder:    seeder,
		db:        db,
		cfg:       cfg,
	}
}

func resultIDs(results []models.TrainerSearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/health"})

	var health map[string]interface{}
	ts.http.AssertJSONResponse(resp, http.StatusOK, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, services.Version, health["version"])

	svc := health["services"].(map[string]interface{})
	assert.Contains(t, svc, "database")
	assert.NotContains(t, svc, "redis")

	searchHealth := svc["search"].(map[string]interface{})
	assert.Equal(t, services.BackendSQLite, searchHealth["backend"])
	assert.Equal(t, "memory", searchHealth["cache"])
	assert.NotEmpty(t, resp.Headers.Get("X-Request-ID"))
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method:  http.MethodGet,
		Path:    "/health",
		Headers: map[string]string{"X-Request-ID": "req-123"},
	})

	assert.Equal(t, "req-123", resp.Headers.Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t)

	// Exercise the chain once so strategy metrics exist
	ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/api/v1/specialties/search"})

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/metrics/json"})

	var metrics map[string]interface{}
	ts.http.AssertJSONResponse(resp, http.StatusOK, &metrics)
	assert.Equal(t, services.BackendSQLite, metrics["backend"])
	assert.EqualValues(t, 3, metrics["trainers"])
	assert.Contains(t, metrics["strategies"], "view")

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/metrics"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.GetResponseString(), "trainersearch_strategy_attempts_total")
}

func TestServer_Search(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		query    map[string]string
		expected []string
	}{
		{"unfiltered", nil, []string{"a", "b", "c"}},
		{"any comma separated", map[string]string{"specialties": "Musculacao, crossfit"}, []string{"a", "c"}},
		{"all", map[string]string{"specialties": "musculacao,yoga", "match": "all"}, []string{"c"}},
		{"paged", map[string]string{"limit": "1", "offset": "1"}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
				Method:      http.MethodGet,
				Path:        "/api/v1/specialties/search",
				QueryParams: tt.query,
			})

			var outcome models.SearchOutcome
			ts.http.AssertJSONResponse(resp, http.StatusOK, &outcome)
			assert.Nil(t, outcome.Error)
			assert.Equal(t, tt.expected, resultIDs(outcome.Data))
			assert.Equal(t, "view", outcome.Source)
		})
	}
}

func TestServer_SearchRepeatedParams(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodGet,
		Path:   "/api/v1/specialties/search?specialties=crossfit&specialties=musculacao",
	})

	var outcome models.SearchOutcome
	ts.http.AssertJSONResponse(resp, http.StatusOK, &outcome)
	assert.Equal(t, []string{"a", "c"}, resultIDs(outcome.Data))
}

func TestServer_SearchIsCached(t *testing.T) {
	ts := newTestServer(t)
	req := testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/specialties/search",
		QueryParams: map[string]string{"specialties": "yoga"},
	}

	var first, second models.SearchOutcome
	ts.http.AssertJSONResponse(ts.http.MakeRequest(req), http.StatusOK, &first)
	ts.http.AssertJSONResponse(ts.http.MakeRequest(req), http.StatusOK, &second)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Data, second.Data)
}

func TestServer_SearchRejectsInvalidInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		query  map[string]string
		detail string
	}{
		{"match mode", map[string]string{"match": "some"}, "unknown match mode"},
		{"limit not a number", map[string]string{"limit": "ten"}, "limit must be an integer"},
		{"negative offset", map[string]string{"offset": "-1"}, "offset must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
				Method:      http.MethodGet,
				Path:        "/api/v1/specialties/search",
				QueryParams: tt.query,
			})

			apiErr := ts.http.AssertErrorResponse(resp, http.StatusBadRequest, tt.detail)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestServer_SearchUnavailable(t *testing.T) {
	ts := newTestServer(t)

	for _, stmt := range []string{
		"DROP VIEW specialty_stats",
		"DROP TABLE trainer_specialty_tags",
		"DROP TABLE trainer_specialties_mv",
		"DROP TABLE trainers",
	} {
		_, err := ts.db.Exec(stmt)
		require.NoError(t, err)
	}

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/api/v1/specialties/search"})

	var outcome models.SearchOutcome
	ts.http.AssertJSONResponse(resp, http.StatusServiceUnavailable, &outcome)
	require.NotNil(t, outcome.Error)
	assert.Empty(t, outcome.Data)
	assert.Zero(t, outcome.Count)
}

func TestServer_Suggestions(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/specialties/suggestions",
		QueryParams: map[string]string{"q": "Y"},
	})

	var body struct {
		Query       string   `json:"query"`
		Suggestions []string `json:"suggestions"`
	}
	ts.http.AssertJSONResponse(resp, http.StatusOK, &body)
	assert.Equal(t, []string{"yoga"}, body.Suggestions)

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/api/v1/specialties/suggestions"})
	ts.http.AssertErrorResponse(resp, http.StatusBadRequest, "q is required")

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/specialties/suggestions",
		QueryParams: map[string]string{"q": "y", "limit": "51"},
	})
	ts.http.AssertErrorResponse(resp, http.StatusBadRequest, "between 1 and 50")
}

func TestServer_Stats(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/api/v1/specialties/stats"})

	var body struct {
		Data []models.SpecialtyStat `json:"data"`
	}
	ts.http.AssertJSONResponse(resp, http.StatusOK, &body)
	assert.Equal(t, []models.SpecialtyStat{
		{Tag: "yoga", Count: 2},
		{Tag: "crossfit", Count: 1},
		{Tag: "musculacao", Count: 1},
	}, body.Data)
}

func TestServer_Token(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/token",
		Body:   handlers.TokenRequest{Password: adminPassword},
	})

	var token handlers.TokenResponse
	ts.http.AssertJSONResponse(resp, http.StatusOK, &token)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Greater(t, token.ExpiresIn, 0)

	claims, err := ts.container.GetJWTManager().ValidateToken(token.AccessToken)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/refresh",
		Body:   handlers.RefreshRequest{Token: token.AccessToken},
	})
	ts.http.AssertJSONResponse(resp, http.StatusOK, &token)
	assert.NotEmpty(t, token.AccessToken)
}

func TestServer_TokenRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/token",
		Body:   handlers.TokenRequest{Password: "wrong-password"},
	})
	ts.http.AssertErrorResponse(resp, http.StatusUnauthorized, "Invalid credentials")

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/token",
		Body:   "{not json",
	})
	ts.http.AssertErrorResponse(resp, http.StatusBadRequest, "Invalid request format")

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/refresh",
		Body:   handlers.RefreshRequest{Token: "garbage"},
	})
	ts.http.AssertErrorResponse(resp, http.StatusUnauthorized, "Invalid or expired token")
}

func TestServer_Refresh(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/specialties/refresh"

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodPost, Path: path})
	ts.http.AssertErrorResponse(resp, http.StatusUnauthorized, "Authorization header is required")

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodPost, Path: path, Role: "viewer"})
	ts.http.AssertErrorResponse(resp, http.StatusForbidden, "Admin privileges required")

	// A new trainer is invisible to the view until it is refreshed
	search := testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/specialties/search",
		QueryParams: map[string]string{"specialties": "pilates"},
	}
	var outcome models.SearchOutcome
	ts.http.AssertJSONResponse(ts.http.MakeRequest(search), http.StatusOK, &outcome)
	assert.Empty(t, outcome.Data)

	require.NoError(t, ts.seeder.Repo.Upsert(context.Background(), &models.TrainerRow{
		ID:          "d",
		Slug:        "dani-pilates",
		Name:        "Dani",
		Specialties: models.JSONList{"Pilates"},
	}))

	resp = ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodPost, Path: path, Role: auth.RoleAdmin})
	ts.http.AssertJSONResponse(resp, http.StatusOK, nil)

	ts.http.AssertJSONResponse(ts.http.MakeRequest(search), http.StatusOK, &outcome)
	assert.False(t, outcome.Cached)
	assert.Equal(t, []string{"d"}, resultIDs(outcome.Data))
}

func TestServer_RefreshDisabledWithoutAdminHash(t *testing.T) {
	ts := newTestServerWith(t, func(cfg *config.Config) {
		cfg.Auth.AdminPasswordHash = ""
	})
	require.False(t, ts.container.GetAdminAuthenticator().Enabled())

	require.NoError(t, ts.seeder.Repo.Upsert(context.Background(), &models.TrainerRow{
		ID:          "d",
		Slug:        "dani-pilates",
		Name:        "Dani",
		Specialties: models.JSONList{"Pilates"},
	}))

	// An admin token signed with the configured secret is still refused
	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method: http.MethodPost,
		Path:   "/api/v1/specialties/refresh",
		Role:   auth.RoleAdmin,
	})
	ts.http.AssertErrorResponse(resp, http.StatusServiceUnavailable, "Admin access is disabled")

	var outcome models.SearchOutcome
	ts.http.AssertJSONResponse(ts.http.MakeRequest(testutil.HTTPTestRequest{
		Method:      http.MethodGet,
		Path:        "/api/v1/specialties/search",
		QueryParams: map[string]string{"specialties": "pilates"},
	}), http.StatusOK, &outcome)
	assert.Empty(t, outcome.Data, "view must not have been rebuilt")
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.http.MakeRequest(testutil.HTTPTestRequest{Method: http.MethodOptions, Path: "/api/v1/specialties/search"})

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Headers.Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testutil.GetTestConfig(t).Config
	cfg.Server.RateLimitRPS = 1
	cfg.Server.RateLimitBurst = 2

	db := testutil.SetupTestDB(t)
	container, err := services.NewContainer(db, nil, cfg, testutil.SetupTestLogger(t))
	require.NoError(t, err)

	ctx := testutil.NewHTTPTestContext(t, server.NewHTTPServer(cfg, container).Handler(), cfg)
	req := testutil.HTTPTestRequest{Method: http.MethodGet, Path: "/health"}

	assert.Equal(t, http.StatusOK, ctx.MakeRequest(req).StatusCode)
	assert.Equal(t, http.StatusOK, ctx.MakeRequest(req).StatusCode)

	resp := ctx.MakeRequest(req)
	ctx.AssertErrorResponse(resp, http.StatusTooManyRequests, "Rate limit exceeded")
	assert.Equal(t, "1", resp.Headers.Get("Retry-After"))
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads messages until one of type msgType satisfies match
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

func TestServer_WebSocketSession(t *testing.T) {
	ts := newTestServer(t)

	httpServer := httptest.NewServer(ts.server.Handler())
	defer httpServer.Close()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Client-ID": []string{"client-1"}})
	require.NoError(t, err)
	defer conn.Close()

	data := readUntil(t, conn, "connected", nil)
	assert.JSONEq(t, `{"client_id":"client-1"}`, string(data))

	testutil.WaitForCondition(t, func() bool {
		return ts.container.GetWebSocketHub().GetClientCount() == 1
	}, 2*time.Second, "client registration")

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "search",
		"filters": map[string]interface{}{"specialties": []string{"yoga"}},
	}))

	var snap struct {
		State    string                       `json:"state"`
		Trainers []models.TrainerSearchResult `json:"trainers"`
		Source   string                       `json:"source"`
	}
	readUntil(t, conn, "search_state", func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &snap))
		return snap.State == "success"
	})
	assert.Equal(t, []string{"b", "c"}, resultIDs(snap.Trainers))
	assert.Equal(t, "view", snap.Source)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, conn, "pong", nil)

	require.NoError(t, ts.container.RefreshView(context.Background()))
	readUntil(t, conn, "view_refreshed", nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "clear"}))
	readUntil(t, conn, "search_state", func(raw json.RawMessage) bool {
		require.NoError(t, json.Unmarshal(raw, &snap))
		return snap.State == "idle"
	})
	assert.Empty(t, snap.Trainers)

	conn.Close()
	testutil.WaitForCondition(t, func() bool {
		return ts.container.GetWebSocketHub().GetClientCount() == 0
	}, 2*time.Second, "client unregistration")
}

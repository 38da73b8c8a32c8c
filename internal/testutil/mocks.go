package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// MockSpecialtyBackend provides mock implementation for SpecialtyBackend
type MockSpecialtyBackend struct {
	mock.Mock
}

func (m *MockSpecialtyBackend) QueryView(ctx context.Context, pred models.TagPredicate, rng models.Range) ([]*models.TrainerRow, int, error) {
	args := m.Called(ctx, pred, rng)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.TrainerRow), args.Int(1), args.Error(2)
}

func (m *MockSpecialtyBackend) QueryTable(ctx context.Context, rng models.Range, requireTags bool) ([]*models.TrainerRow, int, error) {
	args := m.Called(ctx, rng, requireTags)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.TrainerRow), args.Int(1), args.Error(2)
}

func (m *MockSpecialtyBackend) RefreshView(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSpecialtyBackend) SpecialtyStats(ctx context.Context) ([]models.SpecialtyStat, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SpecialtyStat), args.Error(1)
}

func (m *MockSpecialtyBackend) SuggestSpecialties(ctx context.Context, prefix string, limit int) ([]string, error) {
	args := m.Called(ctx, prefix, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockStrategy provides mock implementation for a search strategy
type MockStrategy struct {
	mock.Mock
	StrategyName string
}

func (m *MockStrategy) Name() string {
	return m.StrategyName
}

func (m *MockStrategy) Attempt(ctx context.Context, filters models.SearchFilters) (*models.SearchOutcome, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SearchOutcome), args.Error(1)
}

// MockHTTPServer provides a test HTTP server for external service testing
type MockHTTPServer struct {
	Server    *httptest.Server
	Requests  []MockHTTPRequest
	responses map[string]http.HandlerFunc
	mu        sync.RWMutex
}

type MockHTTPRequest struct {
	Method    string
	Path      string
	Query     string
	Headers   map[string]string
	Body      string
	Timestamp time.Time
}

// NewMockHTTPServer creates a new mock HTTP server
func NewMockHTTPServer() *MockHTTPServer {
	mockServer := &MockHTTPServer{
		Requests:  make([]MockHTTPRequest, 0),
		responses: make(map[string]http.HandlerFunc),
	}

	mockServer.Server = httptest.NewServer(http.HandlerFunc(mockServer.handler))
	return mockServer
}

// Close shuts down the mock server
func (m *MockHTTPServer) Close() {
	m.Server.Close()
}

// GetURL returns the base URL of the mock server
func (m *MockHTTPServer) GetURL() string {
	return m.Server.URL
}

// GetRequests returns all captured requests
func (m *MockHTTPServer) GetRequests() []MockHTTPRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requests := make([]MockHTTPRequest, len(m.Requests))
	copy(requests, m.Requests)
	return requests
}

// ClearRequests clears all captured requests
func (m *MockHTTPServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = m.Requests[:0]
}

// SetResponse sets a custom response for a path
func (m *MockHTTPServer) SetResponse(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[path] = handler
}

func (m *MockHTTPServer) handler(w http.ResponseWriter, r *http.Request) {
	body := ""
	if r.Body != nil {
		if data, err := io.ReadAll(r.Body); err == nil {
			body = string(data)
		}
	}

	headers := make(map[string]string)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, MockHTTPRequest{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   headers,
		Body:      body,
		Timestamp: time.Now(),
	})
	handler, exists := m.responses[r.URL.Path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"code":"PGRST205","message":"Could not find the table"}`))
}

// SupabaseMockServer creates a PostgREST-like server over trainers. The view
// and the raw table both serve every trainer; the view ignores tag filters,
// so tests exercising predicates should assert on the captured query.
func SupabaseMockServer(trainers []*models.TrainerRow) *MockHTTPServer {
	server := NewMockHTTPServer()

	rows := func(idKey string) []map[string]interface{} {
		out := make([]map[string]interface{}, 0, len(trainers))
		for _, t := range trainers {
			row := map[string]interface{}{
				idKey:         t.ID,
				"slug":        t.Slug,
				"name":        t.Name,
				"specialties": []interface{}(t.Specialties),
			}
			for k, v := range t.Fields {
				row[k] = v
			}
			out = append(out, row)
		}
		return out
	}

	serve := func(data []map[string]interface{}) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", len(data)-1, len(data)))
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(data)
		}
	}

	server.SetResponse("/rest/v1/trainer_specialties_mv", serve(rows("trainer_id")))
	server.SetResponse("/rest/v1/trainers", serve(rows("id")))
	server.SetResponse("/rest/v1/rpc/refresh_trainer_specialties_mv", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server.SetResponse("/rest/v1/specialty_stats", func(w http.ResponseWriter, r *http.Request) {
		counts := map[string]int{}
		for _, t := range trainers {
			for _, tag := range models.CanonicalSpecialties(models.DeriveSpecialtiesText(t.Specialties)) {
				counts[tag]++
			}
		}

		prefix := strings.TrimSuffix(strings.TrimPrefix(r.URL.Query().Get("tag"), "like."), "*")
		stats := make([]map[string]interface{}, 0, len(counts))
		for tag, n := range counts {
			if prefix != "" && !strings.HasPrefix(tag, prefix) {
				continue
			}
			stats = append(stats, map[string]interface{}{"tag": tag, "trainer_count": n})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return server
}

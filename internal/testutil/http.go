package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/models"
)

// HTTPTestContext provides utilities for HTTP testing
type HTTPTestContext struct {
	Handler http.Handler
	Config  *config.Config
	t       *testing.T
}

// NewHTTPTestContext creates a new HTTP test context around handler
func NewHTTPTestContext(t *testing.T, handler http.Handler, cfg *config.Config) *HTTPTestContext {
	return &HTTPTestContext{
		Handler: handler,
		Config:  cfg,
		t:       t,
	}
}

// HTTPTestRequest represents a test HTTP request
type HTTPTestRequest struct {
	Method      string
	Path        string
	Body        interface{}
	Headers     map[string]string
	QueryParams map[string]string
	Role        string // issues a bearer token with this role when set
}

// HTTPTestResponse represents a test HTTP response
type HTTPTestResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// MakeRequest makes an HTTP request and returns the response
func (ctx *HTTPTestContext) MakeRequest(req HTTPTestRequest) *HTTPTestResponse {
	var body io.Reader

	if req.Body != nil {
		if str, ok := req.Body.(string); ok {
			body = strings.NewReader(str)
		} else {
			bodyBytes, err := json.Marshal(req.Body)
			require.NoError(ctx.t, err)
			body = bytes.NewReader(bodyBytes)
		}
	}

	httpReq := httptest.NewRequest(req.Method, req.Path, body)

	if req.QueryParams != nil {
		q := httpReq.URL.Query()
		for key, value := range req.QueryParams {
			q.Add(key, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Role != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ctx.CreateJWTToken("test-user", req.Role))
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	ctx.Handler.ServeHTTP(w, httpReq)

	return &HTTPTestResponse{
		StatusCode: w.Code,
		Body:       w.Body.Bytes(),
		Headers:    w.Header(),
	}
}

// CreateJWTToken signs a token with the configured secret
func (ctx *HTTPTestContext) CreateJWTToken(subject, role string) string {
	tokens := auth.NewJWTManager(ctx.Config.Auth.JWTSecret, ctx.Config.Auth.TokenDuration)
	token, _, err := tokens.GenerateToken(subject, role)
	require.NoError(ctx.t, err)
	return token
}

// AssertJSONResponse asserts that the response is JSON and matches expected status
func (ctx *HTTPTestContext) AssertJSONResponse(resp *HTTPTestResponse, expectedStatus int, target interface{}) {
	require.Equal(ctx.t, expectedStatus, resp.StatusCode, "body: %s", resp.GetResponseString())
	require.Equal(ctx.t, "application/json; charset=utf-8", resp.Headers.Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(resp.Body, target)
		require.NoError(ctx.t, err, "Failed to unmarshal JSON response: %s", string(resp.Body))
	}
}

// AssertErrorResponse asserts that the response is a problem document whose
// detail contains expectedDetail
func (ctx *HTTPTestContext) AssertErrorResponse(resp *HTTPTestResponse, expectedStatus int, expectedDetail string) *models.APIError {
	var apiErr models.APIError
	ctx.AssertJSONResponse(resp, expectedStatus, &apiErr)

	require.Equal(ctx.t, expectedStatus, apiErr.Status)
	if expectedDetail != "" {
		require.Contains(ctx.t, apiErr.Detail, expectedDetail)
	}
	return &apiErr
}

// GetJSONField extracts a field from JSON response
func (ctx *HTTPTestContext) GetJSONField(resp *HTTPTestResponse, field string) interface{} {
	var data map[string]interface{}
	err := json.Unmarshal(resp.Body, &data)
	require.NoError(ctx.t, err)

	return data[field]
}

// GetResponseString returns the response body as string
func (resp *HTTPTestResponse) GetResponseString() string {
	return string(resp.Body)
}

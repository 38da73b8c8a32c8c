package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/joaohlviana/99novo-sub001/internal/config"
	"github.com/joaohlviana/99novo-sub001/internal/models"
	"github.com/joaohlviana/99novo-sub001/internal/repositories"
)

var _ repositories.SpecialtyBackend = (*Client)(nil)

// PostgreSQL and PostgREST error codes that mean the relation or RPC is missing
var missingRelationCodes = map[string]bool{
	"42P01":    true, // undefined_table
	"PGRST202": true, // function not found in schema cache
	"PGRST205": true, // table not found in schema cache
}

// Error codes raised when an operator or literal is not accepted
var unsupportedPredicateCodes = map[string]bool{
	"42883":    true, // undefined_function, e.g. no && operator for the column type
	"42804":    true, // datatype_mismatch
	"22P02":    true, // invalid_text_representation of the array literal
	"PGRST100": true, // filter parse error
}

// Client reads trainers from a Supabase project through its PostgREST API
type Client struct {
	baseURL    string
	apiKey     string
	viewName   string
	tableName  string
	refreshRPC string
	statsView  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewClient creates a new PostgREST client
func NewClient(cfg config.SupabaseConfig, logger *logrus.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
		limit = rate.Every(time.Duration(cfg.RateLimitWindow) * time.Second / time.Duration(cfg.RateLimitRequests))
	}
	burst := cfg.RateLimitRequests
	if burst <= 0 {
		burst = 1
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		viewName:   cfg.ViewName,
		tableName:  cfg.TableName,
		refreshRPC: cfg.RefreshRPC,
		statsView:  cfg.StatsView,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// postgrestError is the error body returned by PostgREST
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// QueryView reads one range of the aggregate view, filtering on its
// specialties_text array with the cs (contains) or ov (overlaps) operator
func (c *Client) QueryView(ctx context.Context, pred models.TagPredicate, rng models.Range) ([]*models.TrainerRow, int, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("order", "name.asc,trainer_id.asc")

	switch pred.Op {
	case models.PredicateNone:
	case models.PredicateContains, models.PredicateOverlaps:
		tags := models.CanonicalSpecialties(pred.Tags)
		if len(tags) == 0 {
			return nil, 0, fmt.Errorf("%w: %s requires at least one tag", models.ErrUnsupportedPredicate, pred.Op)
		}
		op := "cs"
		if pred.Op == models.PredicateOverlaps {
			op = "ov"
		}
		params.Set("specialties_text", op+"."+arrayLiteral(tags))
	default:
		return nil, 0, fmt.Errorf("%w: operator %q", models.ErrUnsupportedPredicate, pred.Op)
	}

	return c.queryRows(ctx, c.viewName, params, rng)
}

// QueryTable reads one range of the raw trainers table
func (c *Client) QueryTable(ctx context.Context, rng models.Range, requireTags bool) ([]*models.TrainerRow, int, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("order", "name.asc,id.asc")
	if requireTags {
		params.Set("specialties", "not.is.null")
	}

	return c.queryRows(ctx, c.tableName, params, rng)
}

// RefreshView calls the refresh RPC of the materialized view
func (c *Client) RefreshView(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+c.refreshRPC, nil, []byte("{}"), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.classify(resp)
	}

	c.logger.Infof("Refreshed %s via rpc %s", c.viewName, c.refreshRPC)
	return nil
}

// SpecialtyStats reads tag usage counts from the stats view
func (c *Client) SpecialtyStats(ctx context.Context) ([]models.SpecialtyStat, error) {
	params := url.Values{}
	params.Set("select", "tag,trainer_count")
	params.Set("order", "trainer_count.desc,tag.asc")

	var rows []struct {
		Tag   string `json:"tag"`
		Count int    `json:"trainer_count"`
	}
	if err := c.getJSON(ctx, c.statsView, params, nil, &rows); err != nil {
		return nil, err
	}

	stats := make([]models.SpecialtyStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, models.SpecialtyStat{Tag: r.Tag, Count: r.Count})
	}
	return stats, nil
}

// SuggestSpecialties returns up to limit tags starting with prefix
func (c *Client) SuggestSpecialties(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	params := url.Values{}
	params.Set("select", "tag")
	params.Set("order", "tag.asc")
	params.Set("tag", "like."+sanitizePattern(prefix)+"*")

	rng := models.NewRange(0, limit)
	var rows []struct {
		Tag string `json:"tag"`
	}
	if err := c.getJSON(ctx, c.statsView, params, &rng, &rows); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(rows))
	for _, r := range rows {
		tags = append(tags, r.Tag)
	}
	return tags, nil
}

func (c *Client) queryRows(ctx context.Context, relation string, params url.Values, rng models.Range) ([]*models.TrainerRow, int, error) {
	if rng.Size() == 0 {
		return []*models.TrainerRow{}, 0, nil
	}

	headers := map[string]string{"Prefer": "count=exact"}
	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+relation, params, nil, withRange(headers, rng))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	total, hasTotal := parseContentRangeTotal(resp.Header.Get("Content-Range"))

	// Requested range starts past the last row
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return []*models.TrainerRow{}, total, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, 0, c.classify(resp)
	}

	var raw []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to decode %s rows: %v", models.ErrBackendUnavailable, relation, err)
	}

	rows := make([]*models.TrainerRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, rowFromJSON(r))
	}
	if !hasTotal {
		total = rng.From + len(rows)
	}

	c.logger.Debugf("Fetched %d/%d rows from %s", len(rows), total, relation)
	return rows, total, nil
}

func (c *Client) getJSON(ctx context.Context, relation string, params url.Values, rng *models.Range, dest interface{}) error {
	var headers map[string]string
	if rng != nil {
		headers = withRange(map[string]string{}, *rng)
	}

	resp, err := c.do(ctx, http.MethodGet, "/rest/v1/"+relation, params, nil, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return c.classify(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", models.ErrBackendUnavailable, relation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, headers map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	req, err := c.createRequest(ctx, method, path, params, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: request failed: %v", models.ErrBackendUnavailable, err)
	}
	return resp, nil
}

// createRequest creates an authenticated HTTP request
func (c *Client) createRequest(ctx context.Context, method, path string, params url.Values, body []byte) (*http.Request, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trainersearch/1.0")

	return req, nil
}

// classify converts a failed PostgREST response into a backend error
func (c *Client) classify(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var pgErr postgrestError
	_ = json.Unmarshal(body, &pgErr)

	msg := pgErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case unsupportedPredicateCodes[pgErr.Code]:
		return fmt.Errorf("%w: %s (%s)", models.ErrUnsupportedPredicate, msg, pgErr.Code)
	case missingRelationCodes[pgErr.Code], resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: relation missing: %s", models.ErrBackendUnavailable, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", models.ErrBackendUnavailable, models.ErrRateLimitExceeded)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", models.ErrBackendUnavailable, resp.StatusCode, msg)
	}
}

func withRange(headers map[string]string, rng models.Range) map[string]string {
	headers["Range-Unit"] = "items"
	headers["Range"] = fmt.Sprintf("%d-%d", rng.From, rng.To)
	return headers
}

// parseContentRangeTotal extracts N from "0-9/N" or "*/N"
func parseContentRangeTotal(header string) (int, bool) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, false
	}
	total, err := strconv.Atoi(header[idx+1:])
	if err != nil {
		return 0, false
	}
	return total, true
}

// arrayLiteral renders tags as a quoted PostgreSQL array literal
func arrayLiteral(tags []string) string {
	quoted := make([]string, len(tags))
	for i, tag := range tags {
		tag = strings.ReplaceAll(tag, `\`, `\\`)
		tag = strings.ReplaceAll(tag, `"`, `\"`)
		quoted[i] = `"` + tag + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

// sanitizePattern strips characters with a meaning in PostgREST like patterns
func sanitizePattern(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '*', '%', '_', '(', ')', ',':
			return -1
		}
		return r
	}, s)
}

func rowFromJSON(r map[string]interface{}) *models.TrainerRow {
	row := &models.TrainerRow{
		ID:     firstString(r, "trainer_id", "id"),
		Slug:   firstString(r, "slug"),
		Name:   firstString(r, "name"),
		Fields: models.JSONObject(r),
	}

	switch v := r["specialties"].(type) {
	case []interface{}:
		row.Specialties = models.JSONList(v)
	case string:
		// Some deployments store the array as JSON text
		var list models.JSONList
		if err := list.Scan(v); err == nil {
			row.Specialties = list
		}
	}
	if row.Specialties == nil {
		row.Specialties = models.JSONList{}
	}

	if s := firstString(r, "updated_at"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			row.UpdatedAt = t
		}
	}
	return row
}

func firstString(r map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

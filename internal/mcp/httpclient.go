package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/storage"
)

// HTTPClient implements DataSource by calling the RepStreak REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, dst any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

// User ids are ignored below: the server derives identity from the caller.

func (c *HTTPClient) GetStats(ctx context.Context, _ int) (*models.StudentStats, error) {
	var resp struct {
		Stats *models.StudentStats `json:"stats"`
	}
	if err := c.get(ctx, "/api/v1/stats", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Stats == nil {
		return nil, fmt.Errorf("httpclient: /api/v1/stats: empty response")
	}
	return resp.Stats, nil
}

func (c *HTTPClient) GetSummary(ctx context.Context, _ int, _ time.Time) (*gamify.Summary, error) {
	var summary gamify.Summary
	if err := c.get(ctx, "/api/v1/gamification", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *HTTPClient) ListCompletions(ctx context.Context, _ int, start, end time.Time) ([]models.CompletionRecord, error) {
	var recs []models.CompletionRecord
	if err := c.get(ctx, "/api/v1/completions", timeParams(start, end), &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *HTTPClient) GetHistoryStats(ctx context.Context, _ int) (*storage.HistoryStats, error) {
	var hs storage.HistoryStats
	if err := c.get(ctx, "/api/v1/history", nil, &hs); err != nil {
		return nil, err
	}
	return &hs, nil
}

func (c *HTTPClient) ListAchievements(ctx context.Context) (gamify.Catalog, error) {
	var catalog gamify.Catalog
	if err := c.get(ctx, "/api/v1/achievements", nil, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Package client talks to the RepStreak REST API from command-line tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/google/uuid"
)

// Client sends requests to the RepStreak server over HTTP.
type Client struct {
	serverURL  string
	httpClient *http.Client
	// backoff is the delay before the first retry; it doubles each attempt.
	backoff time.Duration
}

// New creates a new HTTP client for the RepStreak server.
func New(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: time.Second,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dst any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rdr)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// GetWorkout fetches a workout definition.
func (c *Client) GetWorkout(ctx context.Context, id uuid.UUID) (*models.Workout, error) {
	var w models.Workout
	if err := c.do(ctx, http.MethodGet, "/api/v1/workouts/"+id.String(), nil, &w); err != nil {
		return nil, fmt.Errorf("fetching workout: %w", err)
	}
	return &w, nil
}

// EnsureStudent provisions stats for the calling user.
func (c *Client) EnsureStudent(ctx context.Context) (bool, error) {
	var resp struct {
		Created bool `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/students", nil, &resp); err != nil {
		return false, fmt.Errorf("provisioning student: %w", err)
	}
	return resp.Created, nil
}

// CompleteWorkout records a completion under completionID. Retries up to 3
// times with exponential backoff on network errors and 5xx responses; the
// server applies a given completion id at most once.
func (c *Client) CompleteWorkout(ctx context.Context, workoutID uuid.UUID, completionID int64) (*stats.Outcome, error) {
	data, err := json.Marshal(map[string]int64{"completion_id": completionID})
	if err != nil {
		return nil, fmt.Errorf("marshaling completion: %w", err)
	}
	path := "/api/v1/workouts/" + workoutID.String() + "/complete"

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		var out stats.Outcome
		err := c.do(ctx, http.MethodPost, path, data, &out)
		if err == nil {
			return &out, nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 {
			break
		}
	}
	return nil, fmt.Errorf("completing workout: %w", lastErr)
}

// Summary fetches the gamification dashboard.
func (c *Client) Summary(ctx context.Context) (*gamify.Summary, error) {
	var s gamify.Summary
	if err := c.do(ctx, http.MethodGet, "/api/v1/gamification", nil, &s); err != nil {
		return nil, fmt.Errorf("fetching summary: %w", err)
	}
	return &s, nil
}

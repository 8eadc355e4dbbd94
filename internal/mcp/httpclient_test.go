package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/storage"
	"github.com/google/uuid"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestGetStats verifies the stats envelope is unwrapped.
func TestGetStats(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/stats": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, map[string]any{
				"stats": models.StudentStats{UserID: 1, WorkoutsCompleted: 12, CurrentStreak: 4, TotalPoints: 850},
				"rank":  gamify.Classify(850),
			})
		},
	})
	defer ts.Close()

	st, err := NewHTTPClient(ts.URL).GetStats(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if st.WorkoutsCompleted != 12 || st.CurrentStreak != 4 || st.TotalPoints != 850 {
		t.Errorf("stats = %+v", st)
	}
}

// TestListCompletions verifies the time range is sent as RFC3339 params.
func TestListCompletions(t *testing.T) {
	wid := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/completions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("start"); got != "2026-03-01T00:00:00Z" {
				t.Errorf("start=%q", got)
			}
			if got := r.URL.Query().Get("end"); got != "2026-03-08T00:00:00Z" {
				t.Errorf("end=%q", got)
			}
			writeTestJSON(t, w, []models.CompletionRecord{
				{ID: 1772442000000, UserID: 1, WorkoutID: wid, CompletedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), PointsEarned: 50},
			})
		},
	})
	defer ts.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recs, err := NewHTTPClient(ts.URL).ListCompletions(context.Background(), 1, start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].WorkoutID != wid || recs[0].PointsEarned != 50 {
		t.Errorf("completions = %+v", recs)
	}
}

// TestGetSummaryAndCatalog verifies the dashboard and catalog decode.
func TestGetSummaryAndCatalog(t *testing.T) {
	catalog := gamify.DefaultCatalog()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/gamification": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, catalog.BuildSummary(gamify.SummaryInput{TotalPoints: 600, WeeklyWorkouts: 3}))
		},
		"/api/v1/achievements": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, catalog)
		},
		"/api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, storage.HistoryStats{TotalCompletions: 7})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL)
	sum, err := c.GetSummary(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Rank.Rank != "Silver" || sum.WeeklyWorkouts != 3 || len(sum.Achievements) != len(catalog) {
		t.Errorf("summary = %+v", sum)
	}

	got, err := c.ListAchievements(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(catalog) || got[0].Rule != catalog[0].Rule {
		t.Errorf("catalog = %+v", got)
	}

	hs, err := c.GetHistoryStats(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if hs.TotalCompletions != 7 {
		t.Errorf("history = %+v", hs)
	}
}

// TestHTTPError verifies non-200 responses surface as errors with the body.
func TestHTTPError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/stats": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no stats for user"}`))
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).GetStats(context.Background(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no stats") {
		t.Errorf("error = %v", err)
	}
}

// TestTrailingSlash verifies the base URL is normalized.
func TestTrailingSlash(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/achievements": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, gamify.Catalog{})
		},
	})
	defer ts.Close()

	if _, err := NewHTTPClient(ts.URL + "/").ListAchievements(context.Background()); err != nil {
		t.Fatal(err)
	}
}

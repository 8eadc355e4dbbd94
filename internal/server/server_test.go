package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/session"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
)

const (
	testAPIKey    = "seed-key"
	testWorkoutID = "6f1c2b9e-3d4a-4c5b-8e7f-1a2b3c4d5e6f"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.OpenLite(filepath.Join(t.TempDir(), "repstreak.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine := stats.NewEngine(db, gamify.DefaultCatalog(), time.UTC, slog.Default())
	hub := session.NewHub(session.NewFakeClock(testNow), slog.Default())
	s := New(engine, db, hub, testAPIKey, slog.Default())
	s.now = func() time.Time { return testNow }
	return s
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return v
}

const seedBody = `{
	"user_id": 1,
	"name": "Core",
	"duration_minutes": 10,
	"muscles_targeted": ["core"],
	"exercises": [{"id": "plank", "name": "Plank", "duration_sec": 45, "rest_seconds": 30}]
}`

func seedWorkout(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, http.MethodPut, "/api/v1/workouts/"+testWorkoutID, seedBody, "X-API-Key", testAPIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d, body %s", rec.Code, rec.Body.String())
	}
}

// TestPutWorkoutAPIKey verifies seeding requires the API key.
func TestPutWorkoutAPIKey(t *testing.T) {
	s := newTestServer(t)
	path := "/api/v1/workouts/" + testWorkoutID

	if rec := do(t, s, http.MethodPut, path, seedBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key status = %d, want 401", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, path, seedBody, "X-API-Key", "wrong"); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", rec.Code)
	}
}

// TestPutWorkoutValidation verifies invalid definitions are rejected with
// per-field tags.
func TestPutWorkoutValidation(t *testing.T) {
	s := newTestServer(t)
	body := `{"user_id": 1, "exercises": [{"id": "plank", "name": "Plank", "rest_seconds": -5}]}`
	rec := do(t, s, http.MethodPut, "/api/v1/workouts/"+testWorkoutID, body, "X-API-Key", testAPIKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}](t, rec)
	if got := resp.Fields["putWorkoutRequest.Name"]; got != "required" {
		t.Errorf("name tag = %q, want required (fields %v)", got, resp.Fields)
	}
	if got := resp.Fields["putWorkoutRequest.Exercises[0].RestSeconds"]; got != "gte" {
		t.Errorf("rest tag = %q, want gte (fields %v)", got, resp.Fields)
	}
}

// TestCompleteWorkoutFlow records completions over HTTP and reads them back.
func TestCompleteWorkoutFlow(t *testing.T) {
	s := newTestServer(t)
	seedWorkout(t, s)

	if rec := do(t, s, http.MethodGet, "/api/v1/stats", ""); rec.Code != http.StatusNotFound {
		t.Errorf("stats before provisioning = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/students", ""); rec.Code != http.StatusCreated {
		t.Errorf("first provision status = %d, want 201", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/students", ""); rec.Code != http.StatusOK {
		t.Errorf("second provision status = %d, want 200", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/workouts/"+testWorkoutID+"/complete", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rec.Code, rec.Body.String())
	}
	out := decode[stats.Outcome](t, rec)
	if out.Stats == nil || out.Stats.WorkoutsCompleted != 1 || out.Stats.TotalPoints != 100 {
		t.Errorf("outcome stats = %+v", out.Stats)
	}
	if len(out.NewlyEarned) != 1 || out.NewlyEarned[0] != "first-workout" {
		t.Errorf("newly earned = %v", out.NewlyEarned)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/workouts/"+testWorkoutID, "")
	wo := decode[struct {
		LastDone *time.Time `json:"last_done"`
	}](t, rec)
	if wo.LastDone == nil || !wo.LastDone.Equal(testNow) {
		t.Errorf("last_done = %v, want %v", wo.LastDone, testNow)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/gamification", "")
	sum := decode[gamify.Summary](t, rec)
	if sum.WorkoutsCompleted != 1 || sum.TotalPoints != 100 || sum.Rank.Rank != "Bronze" {
		t.Errorf("summary = %+v", sum)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/completions?start=2026-03-01&end=2026-03-02", "")
	recs := decode[[]map[string]any](t, rec)
	if len(recs) != 1 {
		t.Errorf("completions = %d, want 1", len(recs))
	}

	rec = do(t, s, http.MethodGet, "/api/v1/history", "")
	hs := decode[storage.HistoryStats](t, rec)
	if hs.TotalCompletions != 1 || len(hs.ByWorkout) != 1 || hs.ByWorkout[0].Name != "Core" {
		t.Errorf("history = %+v", hs)
	}
}

// TestCompleteWorkoutReplay verifies a repeated completion id applies once.
func TestCompleteWorkoutReplay(t *testing.T) {
	s := newTestServer(t)
	seedWorkout(t, s)
	do(t, s, http.MethodPost, "/api/v1/students", "")

	path := "/api/v1/workouts/" + testWorkoutID + "/complete"
	body := `{"completion_id": 1772442000000}`
	do(t, s, http.MethodPost, path, body)
	rec := do(t, s, http.MethodPost, path, body)
	out := decode[stats.Outcome](t, rec)
	if !out.Replayed || out.Stats.WorkoutsCompleted != 1 {
		t.Errorf("replay outcome = %+v", out)
	}

	if rec := do(t, s, http.MethodPost, path, `{"completion_id": -4}`); rec.Code != http.StatusBadRequest {
		t.Errorf("negative id status = %d, want 400", rec.Code)
	}
}

// TestSessionFlow runs a hosted session to the end and checks the
// completion was recorded.
func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)
	seedWorkout(t, s)
	do(t, s, http.MethodPost, "/api/v1/students", "")

	rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "`+testWorkoutID+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
	started := decode[startSessionResponse](t, rec)
	if started.Session.Phase != session.PhaseExercising {
		t.Fatalf("phase = %s, want exercising", started.Session.Phase)
	}
	base := "/api/v1/sessions/" + started.ID.String()

	if rec := do(t, s, http.MethodPost, base+"/advance", ""); rec.Code != http.StatusConflict {
		t.Errorf("advance while exercising = %d, want 409", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, base+"/complete-set", ""); rec.Code != http.StatusOK {
		t.Fatalf("complete-set status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, base+"/advance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("advance status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Session  session.Snapshot  `json:"session"`
		Finished *session.Finished `json:"finished"`
		Outcome  *stats.Outcome    `json:"outcome"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session.Phase != session.PhaseFinished || resp.Finished == nil {
		t.Fatalf("final response = %+v", resp)
	}
	if resp.Outcome == nil || resp.Outcome.Stats.WorkoutsCompleted != 1 {
		t.Errorf("outcome = %+v", resp.Outcome)
	}

	if rec := do(t, s, http.MethodGet, base, ""); rec.Code != http.StatusNotFound {
		t.Errorf("finished session status = %d, want 404", rec.Code)
	}
}

// TestCompleteUnknownWorkout verifies no points are awarded for a workout
// that does not exist.
func TestCompleteUnknownWorkout(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/v1/students", "")

	rec := do(t, s, http.MethodPost, "/api/v1/workouts/00000000-0000-4000-8000-000000000abc/complete", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
	}
	st := decode[struct {
		Stats struct {
			WorkoutsCompleted int `json:"workouts_completed"`
			TotalPoints       int `json:"total_points"`
		} `json:"stats"`
	}](t, do(t, s, http.MethodGet, "/api/v1/stats", ""))
	if st.Stats.WorkoutsCompleted != 0 || st.Stats.TotalPoints != 0 {
		t.Errorf("stats = %+v, want untouched", st.Stats)
	}
}

// failingStore fails every completion write while fail is set.
type failingStore struct {
	*storage.LiteDB
	fail atomic.Bool
}

func (f *failingStore) WithinUser(ctx context.Context, userID int, fn func(tx stats.UserTx) error) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.LiteDB.WithinUser(ctx, userID, fn)
}

// TestSessionFinishRecordFailure verifies a finish whose stats write fails
// still hands the client the finished event and a completion id it can
// retry with.
func TestSessionFinishRecordFailure(t *testing.T) {
	db, err := storage.OpenLite(filepath.Join(t.TempDir(), "repstreak.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := &failingStore{LiteDB: db}
	engine := stats.NewEngine(store, gamify.DefaultCatalog(), time.UTC, slog.Default())
	hub := session.NewHub(session.NewFakeClock(testNow), slog.Default())
	s := New(engine, db, hub, testAPIKey, slog.Default())
	s.now = func() time.Time { return testNow }

	seedWorkout(t, s)
	do(t, s, http.MethodPost, "/api/v1/students", "")

	rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "`+testWorkoutID+`"}`)
	started := decode[startSessionResponse](t, rec)
	base := "/api/v1/sessions/" + started.ID.String()
	do(t, s, http.MethodPost, base+"/complete-set", "")

	store.fail.Store(true)
	rec = do(t, s, http.MethodPost, base+"/advance", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("finish status = %d, want 500", rec.Code)
	}
	failed := decode[sessionActionResponse](t, rec)
	if failed.Result == nil || failed.Finished == nil {
		t.Fatalf("finish response lost the finished event: %+v", failed)
	}
	if failed.CompletionID != stats.NewCompletionID(testNow) {
		t.Errorf("completion id = %d, want %d", failed.CompletionID, stats.NewCompletionID(testNow))
	}
	if failed.Error == "" {
		t.Error("missing error message")
	}

	store.fail.Store(false)
	retry := fmt.Sprintf(`{"completion_id": %d}`, failed.CompletionID)
	path := "/api/v1/workouts/" + failed.Finished.WorkoutID.String() + "/complete"
	rec = do(t, s, http.MethodPost, path, retry)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, body %s", rec.Code, rec.Body.String())
	}
	out := decode[stats.Outcome](t, rec)
	if out.Replayed || out.Completion.ID != failed.CompletionID || out.Stats.WorkoutsCompleted != 1 {
		t.Errorf("retry outcome = %+v", out)
	}

	out = decode[stats.Outcome](t, do(t, s, http.MethodPost, path, retry))
	if !out.Replayed || out.Stats.WorkoutsCompleted != 1 {
		t.Errorf("second retry = %+v, want replayed", out)
	}
}

// TestSessionNotFound covers unknown workouts, sessions and actions.
func TestSessionNotFound(t *testing.T) {
	s := newTestServer(t)
	seedWorkout(t, s)

	if rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "00000000-0000-0000-0000-000000000001"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown workout status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "nope"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad workout id status = %d, want 400", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/v1/sessions/00000000-0000-0000-0000-000000000002", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}

	rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "`+testWorkoutID+`"}`)
	started := decode[startSessionResponse](t, rec)
	base := "/api/v1/sessions/" + started.ID.String()
	if rec := do(t, s, http.MethodPost, base+"/jump", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Errorf("abandon status = %d, want 204", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, base, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second abandon status = %d, want 404", rec.Code)
	}
}

// TestSessionEvents verifies the SSE stream sends the current snapshot and
// an end event when the session is abandoned.
func TestSessionEvents(t *testing.T) {
	s := newTestServer(t)
	seedWorkout(t, s)
	rec := do(t, s, http.MethodPost, "/api/v1/sessions", `{"workout_id": "`+testWorkoutID+`"}`)
	started := decode[startSessionResponse](t, rec)

	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + started.ID.String() + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() string {
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		return ""
	}
	if ev := next(); ev != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", ev)
	}

	if err := s.hub.Abandon(started.ID, 1); err != nil {
		t.Fatal(err)
	}
	if ev := next(); ev != "end" {
		t.Errorf("last event = %q, want end", ev)
	}
}

// TestRank covers explicit and caller-derived classification.
func TestRank(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/rank?points=1750", "")
	r := decode[gamify.Rank](t, rec)
	if r.Rank != "Gold" || r.NextRank != "Platinum" || r.ProgressPercent != 50 {
		t.Errorf("rank = %+v", r)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/rank", "")
	if r := decode[gamify.Rank](t, rec); r.Rank != "Bronze" {
		t.Errorf("unprovisioned rank = %+v", r)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/rank?points=lots", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad points status = %d, want 400", rec.Code)
	}
}

// TestAchievementsList verifies the catalog is served.
func TestAchievementsList(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/v1/achievements", "")
	cat := decode[[]map[string]any](t, rec)
	if len(cat) != len(gamify.DefaultCatalog()) {
		t.Errorf("catalog size = %d, want %d", len(cat), len(gamify.DefaultCatalog()))
	}
}

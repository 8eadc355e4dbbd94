package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	st, err := s.engine.Stats(r.Context(), uid)
	if errors.Is(err, stats.ErrNoStats) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no stats for user"})
		return
	}
	if err != nil {
		s.log.Error("loading stats", "user_id", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats": st,
		"rank":  gamify.Classify(st.TotalPoints),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	hs, err := s.store.GetHistoryStats(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

func (s *Server) handleEnsureStudent(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	created, err := s.engine.EnsureStudent(r.Context(), uid, s.now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

func (s *Server) handleGamification(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	sum, err := s.engine.Summary(r.Context(), uid, s.now())
	if err != nil {
		s.log.Error("building summary", "user_id", uid, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	recs, err := s.engine.Completions(r.Context(), uid, start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []models.CompletionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Catalog())
}

// handleRank classifies ?points=N, or the caller's own total when absent.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("points"); v != "" {
		points, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "points must be an integer"})
			return
		}
		writeJSON(w, http.StatusOK, gamify.Classify(points))
		return
	}

	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var points int
	st, err := s.engine.Stats(r.Context(), uid)
	switch {
	case err == nil:
		points = st.TotalPoints
	case !errors.Is(err, stats.ErrNoStats):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, gamify.Classify(points))
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	workoutID, ok := workoutIDParam(w, r)
	if !ok {
		return
	}
	wo, err := s.store.GetWorkout(r.Context(), uid, workoutID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

type exerciseRequest struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	MachineName   string `json:"machine_name"`
	PrimaryMuscle string `json:"primary_muscle"`
	Sets          int    `json:"sets" validate:"gte=0"`
	Reps          int    `json:"reps" validate:"gte=0"`
	DurationSec   int    `json:"duration_sec" validate:"gte=0"`
	RestSeconds   int    `json:"rest_seconds" validate:"gte=0"`
}

type putWorkoutRequest struct {
	UserID          int               `json:"user_id" validate:"required,gt=0"`
	Name            string            `json:"name" validate:"required"`
	DurationMinutes int               `json:"duration_minutes" validate:"gte=0"`
	MusclesTargeted []string          `json:"muscles_targeted"`
	Exercises       []exerciseRequest `json:"exercises" validate:"dive"`
}

// handlePutWorkout seeds or replaces a workout definition.
func (s *Server) handlePutWorkout(w http.ResponseWriter, r *http.Request) {
	workoutID, ok := workoutIDParam(w, r)
	if !ok {
		return
	}
	var req putWorkoutRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	wo := models.Workout{
		ID:              workoutID,
		UserID:          req.UserID,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		MusclesTargeted: req.MusclesTargeted,
		Exercises:       make([]models.Exercise, 0, len(req.Exercises)),
	}
	for _, ex := range req.Exercises {
		wo.Exercises = append(wo.Exercises, models.Exercise(ex))
	}
	if err := s.store.PutWorkout(r.Context(), wo); err != nil {
		s.log.Error("saving workout", "workout", workoutID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

type completeRequest struct {
	CompletionID *int64 `json:"completion_id" validate:"omitempty,gt=0"`
}

// handleCompleteWorkout records a completion for a workout run outside the
// hosted sessions, e.g. by the terminal runner. It is also the retry path for
// a session whose finish could not be recorded.
func (s *Server) handleCompleteWorkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	workoutID, ok := workoutIDParam(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if _, err := s.store.GetWorkout(r.Context(), uid, workoutID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out, err := s.recordCompletion(r, uid, workoutID, req.CompletionID)
	if err != nil {
		writeStatsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// recordCompletion records through the engine and stamps the workout's
// last-done date. A failed stamp is logged; the completion stands.
func (s *Server) recordCompletion(r *http.Request, uid int, workoutID uuid.UUID, id *int64) (*stats.Outcome, error) {
	now := s.now()
	var out *stats.Outcome
	var err error
	if id != nil {
		out, err = s.engine.RecordCompletionWithID(r.Context(), uid, workoutID, *id, now)
	} else {
		out, err = s.engine.RecordCompletion(r.Context(), uid, workoutID, now)
	}
	if err != nil {
		s.log.Error("recording completion", "user_id", uid, "workout", workoutID, "error", err)
		return nil, err
	}
	if !out.Replayed {
		if err := s.store.MarkWorkoutDone(r.Context(), uid, workoutID, now); err != nil {
			s.log.Warn("marking workout done", "user_id", uid, "workout", workoutID, "error", err)
		}
	}
	return out, nil
}

func writeStatsError(w http.ResponseWriter, err error) {
	if errors.Is(err, stats.ErrStatsUpdate) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats update failed"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func workoutIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workout ID"})
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// An empty body decodes to the zero value. On failure the 400 response has
// already been written.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 30 days
		end = time.Now()
		start = end.AddDate(0, 0, -30)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}

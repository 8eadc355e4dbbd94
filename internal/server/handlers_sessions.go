package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/claude/repstreak/internal/session"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	WorkoutID string `json:"workout_id" validate:"required,uuid"`
}

type startSessionResponse struct {
	ID      uuid.UUID        `json:"id"`
	Session session.Snapshot `json:"session"`
}

// sessionActionResponse adds the recorded completion to a finishing action.
// When recording fails, Error and CompletionID tell the client to retry
// through POST /workouts/{id}/complete with that id.
type sessionActionResponse struct {
	*session.Result
	Outcome      *stats.Outcome `json:"outcome,omitempty"`
	CompletionID int64          `json:"completion_id,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	workoutID := uuid.MustParse(req.WorkoutID)

	wo, err := s.store.GetWorkout(r.Context(), uid, workoutID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workout not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	id, snap := s.hub.Start(uid, *wo)
	if id == uuid.Nil {
		// Nothing to run; the client shows the empty state.
		writeJSON(w, http.StatusOK, startSessionResponse{Session: snap})
		return
	}
	writeJSON(w, http.StatusCreated, startSessionResponse{ID: id, Session: snap})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	snap, err := s.hub.Get(id, uid)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := s.hub.Abandon(id, uid); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionAction applies an action. When it finishes the session the
// completion is recorded before responding.
func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	action, ok := session.ParseAction(chi.URLParam(r, "action"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action"})
		return
	}

	res, err := s.hub.Do(id, uid, action)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if !res.Accepted {
		writeJSON(w, http.StatusConflict, sessionActionResponse{Result: res})
		return
	}
	if res.Finished == nil {
		writeJSON(w, http.StatusOK, sessionActionResponse{Result: res})
		return
	}

	// The session is gone from the hub once finished, so the id is fixed
	// before recording to keep a failed write retryable.
	completionID := stats.NewCompletionID(s.now())
	out, err := s.recordCompletion(r, uid, res.Finished.WorkoutID, &completionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, sessionActionResponse{
			Result:       res,
			CompletionID: completionID,
			Error:        "stats update failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionActionResponse{Result: res, Outcome: out})
}

// handleSessionEvents streams snapshots over SSE until the session ends or
// the client goes away.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	ch, cancel, err := s.hub.Subscribe(id, uid)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	defer cancel()

	snap, err := s.hub.Get(id, uid)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send current state immediately
	fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", mustJSON(snap))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				fmt.Fprintf(w, "event: end\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", mustJSON(snap))
			flusher.Flush()
		}
	}
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}

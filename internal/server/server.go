package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/session"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Store is the persistence the HTTP layer needs besides the stats engine.
// Workouts are only read and seeded here; authoring happens elsewhere.
type Store interface {
	GetWorkout(ctx context.Context, userID int, id uuid.UUID) (*models.Workout, error)
	PutWorkout(ctx context.Context, w models.Workout) error
	MarkWorkoutDone(ctx context.Context, userID int, id uuid.UUID, at time.Time) error
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	GetHistoryStats(ctx context.Context, userID int) (*storage.HistoryStats, error)
}

var _ Store = storage.Store(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine   *stats.Engine
	store    Store
	hub      *session.Hub
	validate *validator.Validate
	log      *slog.Logger
	apiKey   string
	router   chi.Router
	identity func(http.Handler) http.Handler
	mcp      http.Handler
	now      func() time.Time
}

// New creates a new Server with all routes configured. Requests are
// attributed to the dev user until SetTailscale is called.
func New(engine *stats.Engine, store Store, hub *session.Hub, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		engine:   engine,
		store:    store,
		hub:      hub,
		validate: validator.New(),
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
		identity: DevIdentity,
		now:      time.Now,
	}
	s.routes()
	return s
}

// SetTailscale switches request identity to Tailscale WhoIs lookups.
func (s *Server) SetTailscale(wc WhoIsClient) {
	s.identity = TailscaleIdentity(wc, s.store, s.log)
}

// SetMCP mounts an MCP handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// withIdentity defers to whichever identity middleware is current, so
// SetTailscale can be called after routes are built.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.identity(next).ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.withIdentity)

		r.Get("/me", s.handleMe)
		r.Get("/stats", s.handleStats)
		r.Get("/history", s.handleHistory)
		r.Post("/students", s.handleEnsureStudent)
		r.Get("/gamification", s.handleGamification)
		r.Get("/completions", s.handleCompletions)
		r.Get("/achievements", s.handleAchievements)
		r.Get("/rank", s.handleRank)

		r.Get("/workouts/{id}", s.handleGetWorkout)
		r.Post("/workouts/{id}/complete", s.handleCompleteWorkout)

		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleAbandonSession)
		r.Post("/sessions/{id}/{action}", s.handleSessionAction)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		// Seeding boundary for the external authoring system.
		r.With(APIKeyAuth(s.apiKey)).Put("/workouts/{id}", s.handlePutWorkout)
	})

	s.router.Handle("/mcp", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.mcp == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "mcp not enabled"})
			return
		}
		s.withIdentity(s.mcp).ServeHTTP(w, r)
	}))
}

package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/google/uuid"
)

// Outcome is the result of recording one completion.
type Outcome struct {
	Completion  models.CompletionRecord `json:"completion"`
	Stats       *models.StudentStats    `json:"stats,omitempty"`
	NewlyEarned []string                `json:"newly_earned"`
	BonusPoints int                     `json:"bonus_points"`
	Rank        *gamify.Rank            `json:"rank,omitempty"`
	// Degraded is set when the record was appended but the user had no
	// stats row to update.
	Degraded bool `json:"degraded,omitempty"`
	// Replayed is set when the completion id was already recorded and
	// nothing was applied.
	Replayed bool `json:"replayed,omitempty"`
}

// Engine applies completions to student stats.
type Engine struct {
	store   Store
	catalog gamify.Catalog
	loc     *time.Location
	log     *slog.Logger
}

// NewEngine creates an Engine. Streak days are counted in loc; nil means
// time.Local.
func NewEngine(store Store, catalog gamify.Catalog, loc *time.Location, log *slog.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{store: store, catalog: catalog, loc: loc, log: log}
}

// Catalog returns the achievement catalog the engine evaluates.
func (e *Engine) Catalog() gamify.Catalog { return e.catalog }

// Location returns the zone streak days are counted in.
func (e *Engine) Location() *time.Location { return e.loc }

// RecordCompletion appends a completion for workoutID at now and updates the
// user's counters, streak, points and achievements in one unit.
func (e *Engine) RecordCompletion(ctx context.Context, userID int, workoutID uuid.UUID, now time.Time) (*Outcome, error) {
	return e.record(ctx, userID, workoutID, now, nil)
}

// RecordCompletionWithID is RecordCompletion with a caller-chosen completion
// id. Retrying with the same id returns the current stats with Replayed set
// and applies nothing.
func (e *Engine) RecordCompletionWithID(ctx context.Context, userID int, workoutID uuid.UUID, id int64, now time.Time) (*Outcome, error) {
	return e.record(ctx, userID, workoutID, now, &id)
}

func (e *Engine) record(ctx context.Context, userID int, workoutID uuid.UUID, now time.Time, id *int64) (*Outcome, error) {
	var out *Outcome
	err := e.store.WithinUser(ctx, userID, func(tx UserTx) error {
		var err error
		out, err = e.apply(ctx, tx, userID, workoutID, now, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatsUpdate, err)
	}

	switch {
	case out.Replayed:
		e.log.Info("completion replayed", "user_id", userID, "completion_id", out.Completion.ID)
	case out.Degraded:
		e.log.Warn("no student stats, completion recorded without stats update",
			"user_id", userID, "workout_id", workoutID, "completion_id", out.Completion.ID)
	default:
		e.log.Info("completion recorded",
			"user_id", userID,
			"workout_id", workoutID,
			"workouts_completed", out.Stats.WorkoutsCompleted,
			"streak", out.Stats.CurrentStreak,
			"total_points", out.Stats.TotalPoints,
			"newly_earned", len(out.NewlyEarned),
		)
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, tx UserTx, userID int, workoutID uuid.UUID, now time.Time, id *int64) (*Outcome, error) {
	if id != nil {
		prev, err := tx.GetCompletion(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("checking completion: %w", err)
		}
		if prev != nil {
			return e.replay(ctx, tx, *prev)
		}
	}

	var rec models.CompletionRecord
	var err error
	if id != nil {
		rec, err = AppendWithID(ctx, tx, *id, userID, workoutID, now)
	} else {
		rec, err = Append(ctx, tx, userID, workoutID, now)
	}
	if err != nil {
		return nil, err
	}

	st, err := tx.GetStudentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	if st == nil {
		return &Outcome{Completion: rec, Degraded: true}, nil
	}
	ach, err := tx.GetAchievementState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}

	next, ev := Apply(*st, ach.Earned, e.catalog, now, e.loc)
	if err := tx.PutStudentStats(ctx, next); err != nil {
		return nil, fmt.Errorf("saving stats: %w", err)
	}
	if len(ev.NewlyEarned) > 0 {
		ach.UserID = userID
		ach.Earned = ev.Earned
		if err := tx.PutAchievementState(ctx, ach); err != nil {
			return nil, fmt.Errorf("saving achievements: %w", err)
		}
	}

	rank := gamify.Classify(next.TotalPoints)
	return &Outcome{
		Completion:  rec,
		Stats:       &next,
		NewlyEarned: ev.NewlyEarned,
		BonusPoints: ev.BonusPoints,
		Rank:        &rank,
	}, nil
}

func (e *Engine) replay(ctx context.Context, tx UserTx, rec models.CompletionRecord) (*Outcome, error) {
	out := &Outcome{Completion: rec, Replayed: true}
	st, err := tx.GetStudentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	if st != nil {
		rank := gamify.Classify(st.TotalPoints)
		out.Stats = st
		out.Rank = &rank
	}
	return out, nil
}

// Apply folds one completion at now into st and evaluates the catalog
// against the result. Counters only grow; the anchor date moves unless the
// completion falls on the same calendar day as the previous one.
func Apply(st models.StudentStats, earned []string, catalog gamify.Catalog, now time.Time, loc *time.Location) (models.StudentStats, gamify.Evaluation) {
	st.WorkoutsCompleted++

	sr := gamify.ComputeStreak(st.LastWorkoutDate, st.CurrentStreak, now, loc)
	st.CurrentStreak = sr.NewStreak
	if sr.AdvanceAnchor {
		anchor := now
		st.LastWorkoutDate = &anchor
	}

	st.TotalPoints += BasePoints

	ev := catalog.Evaluate(earned, gamify.Snapshot{
		WorkoutsCompleted: st.WorkoutsCompleted,
		CurrentStreak:     st.CurrentStreak,
	})
	st.TotalPoints += ev.BonusPoints
	st.UpdatedAt = now
	return st, ev
}

// EnsureStudent provisions zeroed stats for userID. It reports whether a new
// row was created.
func (e *Engine) EnsureStudent(ctx context.Context, userID int, now time.Time) (bool, error) {
	created, err := e.store.CreateStudentStats(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("creating student stats: %w", err)
	}
	if created {
		e.log.Info("student stats provisioned", "user_id", userID)
	}
	return created, nil
}

// ErrNoStats is returned by Stats when the user was never provisioned.
var ErrNoStats = errors.New("student stats not found")

// Stats returns the user's current stats.
func (e *Engine) Stats(ctx context.Context, userID int) (*models.StudentStats, error) {
	st, err := e.store.GetStudentStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	if st == nil {
		return nil, ErrNoStats
	}
	return st, nil
}

// Completions returns the user's completion history within [start, end).
func (e *Engine) Completions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error) {
	recs, err := e.store.ListCompletions(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	return recs, nil
}

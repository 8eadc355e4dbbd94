package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetWorkout returns a workout assigned to userID. Returns ErrNotFound if the
// workout does not exist or belongs to another user.
func (db *DB) GetWorkout(ctx context.Context, userID int, id uuid.UUID) (*models.Workout, error) {
	var w models.Workout
	var exercises []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, name, duration_minutes, muscles_targeted, exercises, last_done
		FROM workouts WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&w.ID, &w.UserID, &w.Name, &w.DurationMinutes, &w.MusclesTargeted, &exercises, &w.LastDone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workout: %w", err)
	}
	if err := json.Unmarshal(exercises, &w.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises: %w", err)
	}
	return &w, nil
}

// PutWorkout inserts or replaces a workout. last_done is preserved on replace.
func (db *DB) PutWorkout(ctx context.Context, w models.Workout) error {
	exercises, err := json.Marshal(w.Exercises)
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	muscles := w.MusclesTargeted
	if muscles == nil {
		muscles = []string{}
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO workouts (id, user_id, name, duration_minutes, muscles_targeted, exercises)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			muscles_targeted = EXCLUDED.muscles_targeted,
			exercises = EXCLUDED.exercises,
			updated_at = NOW()`,
		w.ID, w.UserID, w.Name, w.DurationMinutes, muscles, exercises)
	if err != nil {
		return fmt.Errorf("upserting workout: %w", err)
	}
	return nil
}

// MarkWorkoutDone sets the workout's last_done timestamp.
func (db *DB) MarkWorkoutDone(ctx context.Context, userID int, id uuid.UUID, at time.Time) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE workouts SET last_done = $3 WHERE id = $1 AND user_id = $2`,
		id, userID, at)
	if err != nil {
		return fmt.Errorf("marking workout done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

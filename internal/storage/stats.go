package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryStats holds aggregate statistics about a user's training history.
type HistoryStats struct {
	TotalCompletions int64                   `json:"total_completions"`
	TotalWorkouts    int64                   `json:"total_workouts"`
	TotalPoints      int64                   `json:"total_points_from_completions"`
	FirstCompletion  *time.Time              `json:"first_completion"`
	LastCompletion   *time.Time              `json:"last_completion"`
	ByWorkout        []WorkoutCompletionStat `json:"by_workout"`
}

// WorkoutCompletionStat holds completion counts for a single workout.
type WorkoutCompletionStat struct {
	WorkoutID uuid.UUID  `json:"workout_id"`
	Name      string     `json:"name"`
	Count     int64      `json:"count"`
	LastDone  *time.Time `json:"last_done,omitempty"`
}

// GetHistoryStats returns aggregate statistics for a user's completions.
func (db *DB) GetHistoryStats(ctx context.Context, userID int) (*HistoryStats, error) {
	stats := &HistoryStats{}

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(points_earned), 0), MIN(completed_at), MAX(completed_at)
		FROM completion_records WHERE user_id = $1`, userID,
	).Scan(&stats.TotalCompletions, &stats.TotalPoints, &stats.FirstCompletion, &stats.LastCompletion)
	if err != nil {
		return nil, fmt.Errorf("summarizing completions: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM workouts WHERE user_id = $1`, userID,
	).Scan(&stats.TotalWorkouts)
	if err != nil {
		return nil, fmt.Errorf("counting workouts: %w", err)
	}

	// Completions of workouts that were since removed are reported under an
	// empty name.
	rows, err := db.Pool.Query(ctx, `
		SELECT c.workout_id, COALESCE(w.name, ''), COUNT(*), MAX(c.completed_at)
		FROM completion_records c
		LEFT JOIN workouts w ON w.id = c.workout_id
		WHERE c.user_id = $1
		GROUP BY c.workout_id, w.name
		ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying completions by workout: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s WorkoutCompletionStat
		if err := rows.Scan(&s.WorkoutID, &s.Name, &s.Count, &s.LastDone); err != nil {
			return nil, fmt.Errorf("scanning workout completion stat: %w", err)
		}
		stats.ByWorkout = append(stats.ByWorkout, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/models"
)

// ListCompletions returns completion records with start <= completed_at < end,
// newest first.
func (db *DB) ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, workout_id, completed_at, points_earned
		FROM completion_records
		WHERE user_id = $1 AND completed_at >= $2 AND completed_at < $3
		ORDER BY completed_at DESC, id DESC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer rows.Close()

	var result []models.CompletionRecord
	for rows.Next() {
		var c models.CompletionRecord
		if err := rows.Scan(&c.ID, &c.UserID, &c.WorkoutID, &c.CompletedAt, &c.PointsEarned); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CountCompletionsSince counts completion records at or after since.
func (db *DB) CountCompletionsSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM completion_records WHERE user_id = $1 AND completed_at >= $2`,
		userID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting completions: %w", err)
	}
	return n, nil
}

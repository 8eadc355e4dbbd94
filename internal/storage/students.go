package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/jackc/pgx/v5"
)

func getStudentStats(ctx context.Context, q querier, userID int, forUpdate bool) (*models.StudentStats, error) {
	query := `SELECT user_id, workouts_completed, current_streak, total_points, last_workout_date, updated_at
		FROM student_stats WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var s models.StudentStats
	err := q.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.WorkoutsCompleted, &s.CurrentStreak, &s.TotalPoints, &s.LastWorkoutDate, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying student stats: %w", err)
	}
	return &s, nil
}

func getAchievementState(ctx context.Context, q querier, userID int) (models.AchievementState, error) {
	st := models.AchievementState{UserID: userID}
	err := q.QueryRow(ctx,
		`SELECT earned FROM achievement_states WHERE user_id = $1`, userID,
	).Scan(&st.Earned)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("querying achievement state: %w", err)
	}
	return st, nil
}

// GetStudentStats returns the user's stats, or nil if none exist.
func (db *DB) GetStudentStats(ctx context.Context, userID int) (*models.StudentStats, error) {
	return getStudentStats(ctx, db.Pool, userID, false)
}

// GetAchievementState returns the user's earned achievement ids.
func (db *DB) GetAchievementState(ctx context.Context, userID int) (models.AchievementState, error) {
	return getAchievementState(ctx, db.Pool, userID)
}

// CreateStudentStats inserts a zeroed stats row. Returns false if one exists.
func (db *DB) CreateStudentStats(ctx context.Context, userID int, now time.Time) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO student_stats (user_id, workouts_completed, current_streak, total_points, updated_at)
		VALUES ($1, 0, 0, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, now)
	if err != nil {
		return false, fmt.Errorf("inserting student stats: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// CompletionRecord is one finished workout attempt. Records are append-only.
type CompletionRecord struct {
	ID           int64     `json:"id"`
	UserID       int       `json:"user_id"`
	WorkoutID    uuid.UUID `json:"workout_id"`
	CompletedAt  time.Time `json:"completed_at"`
	PointsEarned int       `json:"points_earned"`
}

// StudentStats is the per-user aggregate updated on every completion.
// LastWorkoutDate is the streak anchor and is nil before the first workout.
type StudentStats struct {
	UserID            int        `json:"user_id"`
	WorkoutsCompleted int        `json:"workouts_completed"`
	CurrentStreak     int        `json:"current_streak"`
	TotalPoints       int        `json:"total_points"`
	LastWorkoutDate   *time.Time `json:"last_workout_date"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AchievementState is the set of achievement ids a user has earned.
type AchievementState struct {
	UserID int      `json:"user_id"`
	Earned []string `json:"earned"`
}

// Has reports whether the achievement id has been earned.
func (a AchievementState) Has(id string) bool {
	return slices.Contains(a.Earned, id)
}

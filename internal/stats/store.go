// Package stats turns finished sessions into persistent progress: it appends
// completion records and maintains each student's counters, streak, points
// and earned achievements.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/claude/repstreak/internal/models"
)

var (
	// ErrDuplicateCompletion is returned by AppendCompletion when the
	// completion id already exists for the user.
	ErrDuplicateCompletion = errors.New("duplicate completion id")

	// ErrStatsUpdate wraps any persistence failure during a completion.
	ErrStatsUpdate = errors.New("stats update failed")
)

// UserTx is the unit of work for one user. Everything done through it
// commits together or not at all, and no other UserTx for the same user
// runs concurrently.
type UserTx interface {
	// GetStudentStats returns nil when the user has no stats row.
	GetStudentStats(ctx context.Context) (*models.StudentStats, error)
	PutStudentStats(ctx context.Context, s models.StudentStats) error
	// GetAchievementState returns an empty state when nothing is earned.
	GetAchievementState(ctx context.Context) (models.AchievementState, error)
	PutAchievementState(ctx context.Context, s models.AchievementState) error
	AppendCompletion(ctx context.Context, rec models.CompletionRecord) error
	// GetCompletion returns nil when no record has the id.
	GetCompletion(ctx context.Context, id int64) (*models.CompletionRecord, error)
}

// Store is the persistence boundary of the stats engine.
type Store interface {
	// WithinUser runs fn in a transaction serialized per user.
	WithinUser(ctx context.Context, userID int, fn func(tx UserTx) error) error

	GetStudentStats(ctx context.Context, userID int) (*models.StudentStats, error)
	GetAchievementState(ctx context.Context, userID int) (models.AchievementState, error)
	// CreateStudentStats inserts a zeroed row. It reports false if one exists.
	CreateStudentStats(ctx context.Context, userID int, now time.Time) (bool, error)
	// ListCompletions returns records with start <= CompletedAt < end, newest first.
	ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error)
	// CountCompletionsSince counts records with CompletedAt >= since.
	CountCompletionsSince(ctx context.Context, userID int, since time.Time) (int, error)
}

package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/google/uuid"
)

// BasePoints is awarded for every completed workout.
const BasePoints = 50

// maxIDBumps bounds the search for a free id when two completions land in
// the same millisecond.
const maxIDBumps = 16

// NewCompletionID derives a completion id from its timestamp.
func NewCompletionID(now time.Time) int64 {
	return now.UnixMilli()
}

// Append writes a new completion record with an id derived from now. Same-day
// duplicates are never rejected; an id collision moves to the next free id.
func Append(ctx context.Context, tx UserTx, userID int, workoutID uuid.UUID, now time.Time) (models.CompletionRecord, error) {
	rec := models.CompletionRecord{
		ID:           NewCompletionID(now),
		UserID:       userID,
		WorkoutID:    workoutID,
		CompletedAt:  now,
		PointsEarned: BasePoints,
	}
	for range maxIDBumps {
		err := tx.AppendCompletion(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrDuplicateCompletion) {
			return models.CompletionRecord{}, fmt.Errorf("appending completion: %w", err)
		}
		rec.ID++
	}
	return models.CompletionRecord{}, fmt.Errorf("appending completion: no free id near %d", NewCompletionID(now))
}

// AppendWithID writes a completion record under a caller-chosen id. It
// returns ErrDuplicateCompletion if the id was already recorded.
func AppendWithID(ctx context.Context, tx UserTx, id int64, userID int, workoutID uuid.UUID, now time.Time) (models.CompletionRecord, error) {
	rec := models.CompletionRecord{
		ID:           id,
		UserID:       userID,
		WorkoutID:    workoutID,
		CompletedAt:  now,
		PointsEarned: BasePoints,
	}
	if err := tx.AppendCompletion(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateCompletion) {
			return models.CompletionRecord{}, err
		}
		return models.CompletionRecord{}, fmt.Errorf("appending completion: %w", err)
	}
	return rec, nil
}

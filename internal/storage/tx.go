package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/jackc/pgx/v5"
)

// completionLockClass namespaces the per-user advisory locks taken while
// applying a completion.
const completionLockClass = 0x5253

var _ stats.Store = (*DB)(nil)

// WithinUser runs fn in a transaction holding a transaction-scoped advisory
// lock on userID. Completions for one user are applied one at a time; other
// users never wait on each other. The lock covers users that have no stats
// row yet, which a row lock could not.
func (db *DB) WithinUser(ctx context.Context, userID int, fn func(tx stats.UserTx) error) error {
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, completionLockClass, userID); err != nil {
			return fmt.Errorf("locking user %d: %w", userID, err)
		}
		return fn(&userTx{tx: tx, userID: userID})
	})
}

// userTx implements stats.UserTx on a pgx transaction.
type userTx struct {
	tx     pgx.Tx
	userID int
}

func (t *userTx) GetStudentStats(ctx context.Context) (*models.StudentStats, error) {
	return getStudentStats(ctx, t.tx, t.userID, true)
}

func (t *userTx) PutStudentStats(ctx context.Context, s models.StudentStats) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE student_stats
		SET workouts_completed = $2, current_streak = $3, total_points = $4,
		    last_workout_date = $5, updated_at = $6
		WHERE user_id = $1`,
		t.userID, s.WorkoutsCompleted, s.CurrentStreak, s.TotalPoints, s.LastWorkoutDate, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating student stats: %w", err)
	}
	return nil
}

func (t *userTx) GetAchievementState(ctx context.Context) (models.AchievementState, error) {
	return getAchievementState(ctx, t.tx, t.userID)
}

func (t *userTx) PutAchievementState(ctx context.Context, s models.AchievementState) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO achievement_states (user_id, earned, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET earned = EXCLUDED.earned, updated_at = NOW()`,
		t.userID, s.Earned)
	if err != nil {
		return fmt.Errorf("saving achievement state: %w", err)
	}
	return nil
}

// AppendCompletion inserts under a savepoint so a duplicate id leaves the
// surrounding transaction usable.
func (t *userTx) AppendCompletion(ctx context.Context, rec models.CompletionRecord) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opening savepoint: %w", err)
	}
	_, err = sp.Exec(ctx, `
		INSERT INTO completion_records (user_id, id, workout_id, completed_at, points_earned)
		VALUES ($1, $2, $3, $4, $5)`,
		t.userID, rec.ID, rec.WorkoutID, rec.CompletedAt, rec.PointsEarned)
	if err != nil {
		sp.Rollback(ctx)
		if isUniqueViolation(err) {
			return stats.ErrDuplicateCompletion
		}
		return fmt.Errorf("inserting completion: %w", err)
	}
	return sp.Commit(ctx)
}

func (t *userTx) GetCompletion(ctx context.Context, id int64) (*models.CompletionRecord, error) {
	rec := models.CompletionRecord{ID: id, UserID: t.userID}
	err := t.tx.QueryRow(ctx, `
		SELECT workout_id, completed_at, points_earned
		FROM completion_records WHERE user_id = $1 AND id = $2`,
		t.userID, id).Scan(&rec.WorkoutID, &rec.CompletedAt, &rec.PointsEarned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading completion: %w", err)
	}
	return &rec, nil
}

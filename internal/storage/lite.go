package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// LiteDB is a single-node store on SQLite for running without Postgres.
// Times are stored as unix milliseconds, string lists as JSON arrays.
type LiteDB struct {
	db *sql.DB
}

var _ stats.Store = (*LiteDB)(nil)

const liteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	login        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	last_seen    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS workouts (
	id               TEXT PRIMARY KEY,
	user_id          INTEGER NOT NULL,
	name             TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	muscles_targeted TEXT NOT NULL DEFAULT '[]',
	exercises        TEXT NOT NULL DEFAULT '[]',
	last_done        INTEGER
);
CREATE TABLE IF NOT EXISTS student_stats (
	user_id            INTEGER PRIMARY KEY,
	workouts_completed INTEGER NOT NULL DEFAULT 0,
	current_streak     INTEGER NOT NULL DEFAULT 0,
	total_points       INTEGER NOT NULL DEFAULT 0,
	last_workout_date  INTEGER,
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS achievement_states (
	user_id INTEGER PRIMARY KEY,
	earned  TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS completion_records (
	user_id       INTEGER NOT NULL,
	id            INTEGER NOT NULL,
	workout_id    TEXT NOT NULL,
	completed_at  INTEGER NOT NULL,
	points_earned INTEGER NOT NULL,
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS completion_records_user_time_idx
	ON completion_records (user_id, completed_at);
`

// OpenLite opens (or creates) the SQLite database at path and applies the
// schema. Writes go through a single connection and transactions start with
// BEGIN IMMEDIATE, so completions are applied one at a time.
func OpenLite(path string) (*LiteDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir %s: %w", dir, err)
		}
	}

	dsn := "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(liteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &LiteDB{db: db}, nil
}

// Close closes the database.
func (l *LiteDB) Close() error {
	return l.db.Close()
}

// liteQuerier is satisfied by *sql.DB and *sql.Tx.
type liteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// WithinUser runs fn in an immediate transaction.
func (l *LiteDB) WithinUser(ctx context.Context, userID int, fn func(tx stats.UserTx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&liteUserTx{tx: tx, userID: userID}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type liteUserTx struct {
	tx     *sql.Tx
	userID int
}

func liteStudentStats(ctx context.Context, q liteQuerier, userID int) (*models.StudentStats, error) {
	var s models.StudentStats
	var last sql.NullInt64
	var updated int64
	err := q.QueryRowContext(ctx, `
		SELECT user_id, workouts_completed, current_streak, total_points, last_workout_date, updated_at
		FROM student_stats WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.WorkoutsCompleted, &s.CurrentStreak, &s.TotalPoints, &last, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying student stats: %w", err)
	}
	s.LastWorkoutDate = fromNullMillis(last)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}

func liteAchievementState(ctx context.Context, q liteQuerier, userID int) (models.AchievementState, error) {
	st := models.AchievementState{UserID: userID}
	var raw string
	err := q.QueryRowContext(ctx, `SELECT earned FROM achievement_states WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("querying achievement state: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &st.Earned); err != nil {
		return st, fmt.Errorf("decoding achievement state: %w", err)
	}
	return st, nil
}

func (t *liteUserTx) GetStudentStats(ctx context.Context) (*models.StudentStats, error) {
	return liteStudentStats(ctx, t.tx, t.userID)
}

func (t *liteUserTx) PutStudentStats(ctx context.Context, s models.StudentStats) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE student_stats
		SET workouts_completed = ?, current_streak = ?, total_points = ?, last_workout_date = ?, updated_at = ?
		WHERE user_id = ?`,
		s.WorkoutsCompleted, s.CurrentStreak, s.TotalPoints, toNullMillis(s.LastWorkoutDate), toMillis(s.UpdatedAt), t.userID)
	if err != nil {
		return fmt.Errorf("updating student stats: %w", err)
	}
	return nil
}

func (t *liteUserTx) GetAchievementState(ctx context.Context) (models.AchievementState, error) {
	return liteAchievementState(ctx, t.tx, t.userID)
}

func (t *liteUserTx) PutAchievementState(ctx context.Context, s models.AchievementState) error {
	earned, err := encodeList(s.Earned)
	if err != nil {
		return fmt.Errorf("encoding achievement state: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO achievement_states (user_id, earned) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET earned = excluded.earned`,
		t.userID, earned)
	if err != nil {
		return fmt.Errorf("saving achievement state: %w", err)
	}
	return nil
}

func (t *liteUserTx) AppendCompletion(ctx context.Context, rec models.CompletionRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO completion_records (user_id, id, workout_id, completed_at, points_earned)
		VALUES (?, ?, ?, ?, ?)`,
		t.userID, rec.ID, rec.WorkoutID.String(), toMillis(rec.CompletedAt), rec.PointsEarned)
	if err != nil {
		return fmt.Errorf("inserting completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting completion: %w", err)
	}
	if n == 0 {
		return stats.ErrDuplicateCompletion
	}
	return nil
}

func (t *liteUserTx) GetCompletion(ctx context.Context, id int64) (*models.CompletionRecord, error) {
	rec := models.CompletionRecord{ID: id, UserID: t.userID}
	var workoutID string
	var completedAt int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT workout_id, completed_at, points_earned
		FROM completion_records WHERE user_id = ? AND id = ?`, t.userID, id,
	).Scan(&workoutID, &completedAt, &rec.PointsEarned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading completion: %w", err)
	}
	if rec.WorkoutID, err = uuid.Parse(workoutID); err != nil {
		return nil, fmt.Errorf("parsing workout id: %w", err)
	}
	rec.CompletedAt = fromMillis(completedAt)
	return &rec, nil
}

// GetStudentStats returns the user's stats, or nil if none exist.
func (l *LiteDB) GetStudentStats(ctx context.Context, userID int) (*models.StudentStats, error) {
	return liteStudentStats(ctx, l.db, userID)
}

// GetAchievementState returns the user's earned achievement ids.
func (l *LiteDB) GetAchievementState(ctx context.Context, userID int) (models.AchievementState, error) {
	return liteAchievementState(ctx, l.db, userID)
}

// CreateStudentStats inserts a zeroed stats row. Returns false if one exists.
func (l *LiteDB) CreateStudentStats(ctx context.Context, userID int, now time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO student_stats (user_id, updated_at) VALUES (?, ?)`,
		userID, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("inserting student stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting student stats: %w", err)
	}
	return n > 0, nil
}

// ListCompletions returns completion records with start <= completed_at < end,
// newest first.
func (l *LiteDB) ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, workout_id, completed_at, points_earned
		FROM completion_records
		WHERE user_id = ? AND completed_at >= ? AND completed_at < ?
		ORDER BY completed_at DESC, id DESC`,
		userID, toMillis(start), toMillis(end))
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer rows.Close()

	var result []models.CompletionRecord
	for rows.Next() {
		var c models.CompletionRecord
		var workoutID string
		var completed int64
		if err := rows.Scan(&c.ID, &c.UserID, &workoutID, &completed, &c.PointsEarned); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		if c.WorkoutID, err = uuid.Parse(workoutID); err != nil {
			return nil, fmt.Errorf("parsing workout id: %w", err)
		}
		c.CompletedAt = fromMillis(completed)
		result = append(result, c)
	}
	return result, rows.Err()
}

// CountCompletionsSince counts completion records at or after since.
func (l *LiteDB) CountCompletionsSince(ctx context.Context, userID int, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completion_records WHERE user_id = ? AND completed_at >= ?`,
		userID, toMillis(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting completions: %w", err)
	}
	return n, nil
}

// GetWorkout returns a workout assigned to userID.
func (l *LiteDB) GetWorkout(ctx context.Context, userID int, id uuid.UUID) (*models.Workout, error) {
	var w models.Workout
	var rawID, muscles, exercises string
	var last sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, duration_minutes, muscles_targeted, exercises, last_done
		FROM workouts WHERE id = ? AND user_id = ?`,
		id.String(), userID,
	).Scan(&rawID, &w.UserID, &w.Name, &w.DurationMinutes, &muscles, &exercises, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workout: %w", err)
	}
	w.ID = id
	w.LastDone = fromNullMillis(last)
	if err := json.Unmarshal([]byte(muscles), &w.MusclesTargeted); err != nil {
		return nil, fmt.Errorf("decoding muscles: %w", err)
	}
	if err := json.Unmarshal([]byte(exercises), &w.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises: %w", err)
	}
	return &w, nil
}

// PutWorkout inserts or replaces a workout. last_done is preserved on replace.
func (l *LiteDB) PutWorkout(ctx context.Context, w models.Workout) error {
	muscles, err := encodeList(w.MusclesTargeted)
	if err != nil {
		return fmt.Errorf("encoding muscles: %w", err)
	}
	exercises, err := json.Marshal(w.Exercises)
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO workouts (id, user_id, name, duration_minutes, muscles_targeted, exercises)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			muscles_targeted = excluded.muscles_targeted,
			exercises = excluded.exercises`,
		w.ID.String(), w.UserID, w.Name, w.DurationMinutes, muscles, string(exercises))
	if err != nil {
		return fmt.Errorf("upserting workout: %w", err)
	}
	return nil
}

// MarkWorkoutDone sets the workout's last_done timestamp.
func (l *LiteDB) MarkWorkoutDone(ctx context.Context, userID int, id uuid.UUID, at time.Time) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE workouts SET last_done = ? WHERE id = ? AND user_id = ?`,
		toMillis(at), id.String(), userID)
	if err != nil {
		return fmt.Errorf("marking workout done: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrCreateUser finds or creates a user by login and makes sure the user
// has a stats row.
func (l *LiteDB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	var id int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (login, display_name, last_seen) VALUES (?, ?, ?)
		ON CONFLICT (login) DO UPDATE SET
			last_seen = excluded.last_seen,
			display_name = COALESCE(NULLIF(excluded.display_name, ''), users.display_name)
		RETURNING id`,
		login, displayName, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO student_stats (user_id, updated_at) VALUES (?, ?)`, id, now); err != nil {
		return 0, fmt.Errorf("provisioning student stats: %w", err)
	}
	return id, tx.Commit()
}

// GetHistoryStats returns aggregate statistics for a user's completions.
func (l *LiteDB) GetHistoryStats(ctx context.Context, userID int) (*HistoryStats, error) {
	hs := &HistoryStats{}
	var first, last sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(points_earned), 0), MIN(completed_at), MAX(completed_at)
		FROM completion_records WHERE user_id = ?`, userID,
	).Scan(&hs.TotalCompletions, &hs.TotalPoints, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("summarizing completions: %w", err)
	}
	hs.FirstCompletion = fromNullMillis(first)
	hs.LastCompletion = fromNullMillis(last)

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workouts WHERE user_id = ?`, userID,
	).Scan(&hs.TotalWorkouts)
	if err != nil {
		return nil, fmt.Errorf("counting workouts: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT c.workout_id, COALESCE(w.name, ''), COUNT(*), MAX(c.completed_at)
		FROM completion_records c
		LEFT JOIN workouts w ON w.id = c.workout_id
		WHERE c.user_id = ?
		GROUP BY c.workout_id
		ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying completions by workout: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s WorkoutCompletionStat
		var workoutID string
		var lastDone int64
		if err := rows.Scan(&workoutID, &s.Name, &s.Count, &lastDone); err != nil {
			return nil, fmt.Errorf("scanning workout completion stat: %w", err)
		}
		if s.WorkoutID, err = uuid.Parse(workoutID); err != nil {
			return nil, fmt.Errorf("parsing workout id: %w", err)
		}
		t := fromMillis(lastDone)
		s.LastDone = &t
		hs.ByWorkout = append(hs.ByWorkout, s)
	}
	return hs, rows.Err()
}

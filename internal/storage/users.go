package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateUser finds or creates a user by Tailscale login name and makes
// sure the user has a stats row. Returns the user ID. Updates last_seen and
// display_name on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (login, display_name)
			VALUES ($1, $2)
			ON CONFLICT (login) DO UPDATE
				SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
			RETURNING id
		`, login, displayName).Scan(&id)
		if err != nil {
			return fmt.Errorf("upserting user: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO student_stats (user_id, workouts_completed, current_streak, total_points, updated_at)
			VALUES ($1, 0, 0, 0, NOW())
			ON CONFLICT (user_id) DO NOTHING`, id)
		if err != nil {
			return fmt.Errorf("provisioning student stats: %w", err)
		}
		return nil
	})
	return id, err
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/config"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/google/uuid"
)

// Store is the persistence surface both drivers provide.
type Store interface {
	stats.Store
	GetWorkout(ctx context.Context, userID int, id uuid.UUID) (*models.Workout, error)
	PutWorkout(ctx context.Context, w models.Workout) error
	MarkWorkoutDone(ctx context.Context, userID int, id uuid.UUID, at time.Time) error
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	GetHistoryStats(ctx context.Context, userID int) (*HistoryStats, error)
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*LiteDB)(nil)
)

// Open connects to the configured database and returns it with its close
// function. Postgres migrations are not applied here; see RunMigrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := OpenLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	case config.DriverPostgres, "":
		db, err := New(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

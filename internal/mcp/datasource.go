package mcp

import (
	"context"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/stats"
	"github.com/claude/repstreak/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Local (engine plus
// store) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetStats(ctx context.Context, userID int) (*models.StudentStats, error)
	GetSummary(ctx context.Context, userID int, now time.Time) (*gamify.Summary, error)
	ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error)
	GetHistoryStats(ctx context.Context, userID int) (*storage.HistoryStats, error)
	ListAchievements(ctx context.Context) (gamify.Catalog, error)
}

// HistoryStore is the storage side of Local. Both *storage.DB and
// *storage.LiteDB satisfy it.
type HistoryStore interface {
	GetHistoryStats(ctx context.Context, userID int) (*storage.HistoryStats, error)
}

// Local serves MCP tools straight from the stats engine and database.
type Local struct {
	Engine  *stats.Engine
	History HistoryStore
}

var _ DataSource = Local{}

func (l Local) GetStats(ctx context.Context, userID int) (*models.StudentStats, error) {
	return l.Engine.Stats(ctx, userID)
}

func (l Local) GetSummary(ctx context.Context, userID int, now time.Time) (*gamify.Summary, error) {
	return l.Engine.Summary(ctx, userID, now)
}

func (l Local) ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error) {
	return l.Engine.Completions(ctx, userID, start, end)
}

func (l Local) GetHistoryStats(ctx context.Context, userID int) (*storage.HistoryStats, error) {
	return l.History.GetHistoryStats(ctx, userID)
}

func (l Local) ListAchievements(context.Context) (gamify.Catalog, error) {
	return l.Engine.Catalog(), nil
}

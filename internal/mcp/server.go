package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepStreak", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepStreak training server. Query workout completions, streaks, points, ranks and achievements. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log, now: time.Now}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetStats, Handler: h.getStats},
		server.ServerTool{Tool: toolGetGamification, Handler: h.getGamification},
		server.ServerTool{Tool: toolListAchievements, Handler: h.listAchievements},
		server.ServerTool{Tool: toolGetCompletions, Handler: h.getCompletions},
		server.ServerTool{Tool: toolClassifyRank, Handler: h.classifyRank},
		server.ServerTool{Tool: toolGetHistoryStats, Handler: h.getHistoryStats},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resAchievementCatalog, Handler: h.achievementCatalog},
		server.ServerResource{Resource: resDashboard, Handler: h.dashboard},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
	now func() time.Time
}

// --- Resource definitions ---

var resAchievementCatalog = mcp.NewResource(
	"repstreak://achievement_catalog",
	"Achievement Catalog",
	mcp.WithResourceDescription("Every achievement with its rule, icon and bonus points"),
	mcp.WithMIMEType("application/json"),
)

var resDashboard = mcp.NewResource(
	"repstreak://dashboard",
	"Gamification Dashboard",
	mcp.WithResourceDescription("Current streak, weekly and monthly counts, rank and achievement progress"),
	mcp.WithMIMEType("application/json"),
)

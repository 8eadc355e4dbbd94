package mcp

import (
	"context"
	"time"

	"github.com/claude/repstreak/internal/gamify"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription("Current training stats: workouts completed, streak in days, total points, last workout date and rank."),
)

var toolGetGamification = mcp.NewTool("get_gamification",
	mcp.WithDescription("Gamification dashboard: streak, workouts in the last 7 and 30 days against goals, rank with progress to the next tier, and every achievement with earned flag and progress percent."),
)

var toolListAchievements = mcp.NewTool("list_achievements",
	mcp.WithDescription("List the achievement catalog with rules (field, operator, threshold) and bonus points."),
)

var toolGetCompletions = mcp.NewTool("get_completions",
	mcp.WithDescription("Completed workouts in a time range, newest first. Each record has the workout id, completion time and base points."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolClassifyRank = mcp.NewTool("classify_rank",
	mcp.WithDescription("Classify a point total into a rank tier (Bronze, Silver, Gold, Platinum, Diamond) with the next tier and progress percent."),
	mcp.WithNumber("points", mcp.Required(), mcp.Description("Total points to classify")),
)

var toolGetHistoryStats = mcp.NewTool("get_history_stats",
	mcp.WithDescription("All-time completion totals: count, points from completions, first and last completion, and per-workout counts."),
)

// --- Tool handlers ---

func (h *handlers) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.ds.GetStats(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"stats": st,
		"rank":  gamify.Classify(st.TotalPoints),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getGamification(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := h.ds.GetSummary(ctx, UserIDFromContext(ctx), h.now())
	if err != nil {
		h.log.Error("mcp get_gamification", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summary)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listAchievements(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := h.ds.ListAchievements(ctx)
	if err != nil {
		h.log.Error("mcp list_achievements", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(catalog)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getCompletions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	recs, err := h.ds.ListCompletions(ctx, UserIDFromContext(ctx), start, end)
	if err != nil {
		h.log.Error("mcp get_completions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(recs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) classifyRank(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	points, err := req.RequireFloat("points")
	if err != nil {
		return mcp.NewToolResultError("points parameter is required"), nil
	}

	result, err := mcp.NewToolResultJSON(gamify.Classify(int(points)))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getHistoryStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hs, err := h.ds.GetHistoryStats(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_history_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(hs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

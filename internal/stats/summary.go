package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/repstreak/internal/gamify"
)

// Windows the dashboard counts completions over, looking back from now.
const (
	WeeklyWindow  = 7 * 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Summary builds the gamification dashboard for userID. A user without
// stats gets a zeroed dashboard.
func (e *Engine) Summary(ctx context.Context, userID int, now time.Time) (*gamify.Summary, error) {
	st, err := e.store.GetStudentStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	ach, err := e.store.GetAchievementState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}
	weekly, err := e.store.CountCompletionsSince(ctx, userID, now.Add(-WeeklyWindow))
	if err != nil {
		return nil, fmt.Errorf("counting weekly completions: %w", err)
	}
	monthly, err := e.store.CountCompletionsSince(ctx, userID, now.Add(-MonthlyWindow))
	if err != nil {
		return nil, fmt.Errorf("counting monthly completions: %w", err)
	}

	in := gamify.SummaryInput{
		Earned:          ach.Earned,
		WeeklyWorkouts:  weekly,
		MonthlyWorkouts: monthly,
	}
	if st != nil {
		in.Snapshot = gamify.Snapshot{WorkoutsCompleted: st.WorkoutsCompleted, CurrentStreak: st.CurrentStreak}
		in.TotalPoints = st.TotalPoints
	}
	s := e.catalog.BuildSummary(in)
	return &s, nil
}

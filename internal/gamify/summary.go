package gamify

import "slices"

// Goals shown alongside the weekly and monthly counts.
const (
	WeeklyGoal  = 6
	MonthlyGoal = 20
)

// AchievementStatus is a catalog entry annotated for one user.
type AchievementStatus struct {
	Achievement
	Earned   bool    `json:"earned"`
	Progress float64 `json:"progress"`
}

// Summary is the gamification dashboard for one user.
type Summary struct {
	StreakCount       int                 `json:"streak_count"`
	WeeklyWorkouts    int                 `json:"weekly_workouts"`
	MonthlyWorkouts   int                 `json:"monthly_workouts"`
	WeeklyGoal        int                 `json:"weekly_goal"`
	MonthlyGoal       int                 `json:"monthly_goal"`
	TotalPoints       int                 `json:"total_points"`
	WorkoutsCompleted int                 `json:"workouts_completed"`
	Rank              Rank                `json:"rank"`
	NextRankProgress  int                 `json:"next_rank_progress"`
	Achievements      []AchievementStatus `json:"achievements"`
}

// SummaryInput carries the values a Summary is built from.
type SummaryInput struct {
	Snapshot        Snapshot
	TotalPoints     int
	Earned          []string
	WeeklyWorkouts  int
	MonthlyWorkouts int
}

// BuildSummary annotates the catalog with earned flags and progress and
// classifies the point total.
func (c Catalog) BuildSummary(in SummaryInput) Summary {
	rank := Classify(in.TotalPoints)
	s := Summary{
		StreakCount:       in.Snapshot.CurrentStreak,
		WeeklyWorkouts:    in.WeeklyWorkouts,
		MonthlyWorkouts:   in.MonthlyWorkouts,
		WeeklyGoal:        WeeklyGoal,
		MonthlyGoal:       MonthlyGoal,
		TotalPoints:       in.TotalPoints,
		WorkoutsCompleted: in.Snapshot.WorkoutsCompleted,
		Rank:              rank,
		NextRankProgress:  rank.RoundedProgress(),
		Achievements:      make([]AchievementStatus, 0, len(c)),
	}
	for _, a := range c {
		st := AchievementStatus{Achievement: a, Progress: a.Rule.Progress(in.Snapshot)}
		if slices.Contains(in.Earned, a.ID) {
			st.Earned = true
			st.Progress = 100
		}
		s.Achievements = append(s.Achievements, st)
	}
	return s
}

// Package gamify holds the pure gamification rules: day streaks, the
// achievement catalog and its evaluator, and rank tiers. Nothing here touches
// storage; the stats engine feeds snapshots in and persists the results.
package gamify

import "time"

// StreakResult is the outcome of applying one completion to a streak.
type StreakResult struct {
	NewStreak int
	// AdvanceAnchor reports whether LastWorkoutDate should move to now.
	// Same-day completions leave the anchor where it is.
	AdvanceAnchor bool
	DiffDays      int
}

// ComputeStreak applies a completion at now to a streak anchored at last.
// Days are calendar days in loc (nil means time.Local):
//
//	no previous workout   -> 1, anchor moves
//	same day              -> unchanged, anchor stays
//	previous day          -> current+1, anchor moves
//	any other difference  -> 1, anchor moves (gaps and backdated completions)
func ComputeStreak(last *time.Time, current int, now time.Time, loc *time.Location) StreakResult {
	if last == nil {
		return StreakResult{NewStreak: 1, AdvanceAnchor: true}
	}
	diff := DiffDays(*last, now, loc)
	switch diff {
	case 0:
		return StreakResult{NewStreak: current, DiffDays: 0}
	case 1:
		return StreakResult{NewStreak: current + 1, AdvanceAnchor: true, DiffDays: 1}
	default:
		return StreakResult{NewStreak: 1, AdvanceAnchor: true, DiffDays: diff}
	}
}

// DiffDays returns the number of calendar days from a to b in loc. Both
// instants are reduced to their local date first, so DST transitions and
// time-of-day never shift the result.
func DiffDays(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	return int(civilDate(b, loc).Sub(civilDate(a, loc)).Hours() / 24)
}

// civilDate maps t to midnight UTC of its calendar date in loc.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

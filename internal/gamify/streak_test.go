package gamify

import (
	"testing"
	"time"
)

func day(d, hour int) time.Time {
	return time.Date(2026, 3, d, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// TestComputeStreak covers each branch of the streak rule.
func TestComputeStreak(t *testing.T) {
	tests := []struct {
		name    string
		last    *time.Time
		current int
		now     time.Time
		want    StreakResult
	}{
		{"first ever", nil, 0, day(2, 9), StreakResult{NewStreak: 1, AdvanceAnchor: true}},
		{"same day", ptr(day(2, 7)), 3, day(2, 22), StreakResult{NewStreak: 3, DiffDays: 0}},
		{"same day zero streak", ptr(day(2, 7)), 0, day(2, 22), StreakResult{NewStreak: 0, DiffDays: 0}},
		{"next day", ptr(day(2, 23)), 3, day(3, 1), StreakResult{NewStreak: 4, AdvanceAnchor: true, DiffDays: 1}},
		{"gap", ptr(day(2, 9)), 3, day(4, 9), StreakResult{NewStreak: 1, AdvanceAnchor: true, DiffDays: 2}},
		{"backdated", ptr(day(5, 9)), 3, day(4, 9), StreakResult{NewStreak: 1, AdvanceAnchor: true, DiffDays: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeStreak(tt.last, tt.current, tt.now, time.UTC)
			if got != tt.want {
				t.Errorf("ComputeStreak() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestStreakSequence applies completions on consecutive and gapped days.
func TestStreakSequence(t *testing.T) {
	run := func(days ...int) int {
		var last *time.Time
		streak := 0
		for _, d := range days {
			now := day(d, 12)
			r := ComputeStreak(last, streak, now, time.UTC)
			streak = r.NewStreak
			if r.AdvanceAnchor {
				last = ptr(now)
			}
		}
		return streak
	}
	if got := run(10, 11, 12); got != 3 {
		t.Errorf("N,N+1,N+2 streak = %d, want 3", got)
	}
	if got := run(10, 12); got != 1 {
		t.Errorf("N,N+2 streak = %d, want 1", got)
	}
	if got := run(10, 10, 10, 11); got != 2 {
		t.Errorf("N,N,N,N+1 streak = %d, want 2", got)
	}
}

// TestDiffDaysTimezone verifies days are counted in the configured zone.
func TestDiffDaysTimezone(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 and 01:30 UTC are the same evening in São Paulo (UTC-3).
	a := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	b := time.Date(2026, 3, 3, 1, 30, 0, 0, time.UTC)
	if got := DiffDays(a, b, time.UTC); got != 1 {
		t.Errorf("UTC diff = %d, want 1", got)
	}
	if got := DiffDays(a, b, sp); got != 0 {
		t.Errorf("Sao Paulo diff = %d, want 0", got)
	}
}

// TestDiffDaysDST verifies a DST change does not shorten or lengthen a day.
func TestDiffDaysDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Clocks spring forward on 2026-03-08.
	a := time.Date(2026, 3, 7, 23, 30, 0, 0, ny)
	b := time.Date(2026, 3, 8, 0, 15, 0, 0, ny)
	if got := DiffDays(a, b, ny); got != 1 {
		t.Errorf("diff across DST = %d, want 1", got)
	}
	c := time.Date(2026, 3, 9, 0, 5, 0, 0, ny)
	if got := DiffDays(a, c, ny); got != 2 {
		t.Errorf("diff = %d, want 2", got)
	}
}

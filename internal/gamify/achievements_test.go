package gamify

import (
	"slices"
	"strings"
	"testing"
)

// TestDefaultCatalogValid verifies the built-in table passes validation.
func TestDefaultCatalogValid(t *testing.T) {
	c := DefaultCatalog()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if len(c) != 8 {
		t.Errorf("catalog size = %d, want 8", len(c))
	}
	a, ok := c.Lookup("streak-30")
	if !ok || a.Points != 500 || a.Rule.Threshold != 30 {
		t.Errorf("Lookup(streak-30) = %+v, %v", a, ok)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("Lookup(nope) found an entry")
	}
}

// TestEvaluateFirstWorkout verifies the first completion awards only
// first-workout.
func TestEvaluateFirstWorkout(t *testing.T) {
	ev := DefaultCatalog().Evaluate(nil, Snapshot{WorkoutsCompleted: 1, CurrentStreak: 1})
	if !slices.Equal(ev.NewlyEarned, []string{"first-workout"}) {
		t.Errorf("newly earned = %v, want [first-workout]", ev.NewlyEarned)
	}
	if ev.BonusPoints != 50 {
		t.Errorf("bonus = %d, want 50", ev.BonusPoints)
	}
}

// TestEvaluateNoDoubleAward verifies earned ids are never awarded again.
func TestEvaluateNoDoubleAward(t *testing.T) {
	c := DefaultCatalog()
	s := Snapshot{WorkoutsCompleted: 7, CurrentStreak: 5}
	first := c.Evaluate(nil, s)
	want := []string{"first-workout", "week-warrior", "streak-5"}
	if !slices.Equal(first.NewlyEarned, want) {
		t.Fatalf("newly earned = %v, want %v", first.NewlyEarned, want)
	}
	if first.BonusPoints != 250 {
		t.Errorf("bonus = %d, want 250", first.BonusPoints)
	}

	second := c.Evaluate(first.Earned, s)
	if len(second.NewlyEarned) != 0 || second.BonusPoints != 0 {
		t.Errorf("second evaluation = %+v, want nothing new", second)
	}
	if !slices.Equal(second.Earned, first.Earned) {
		t.Errorf("earned = %v, want %v", second.Earned, first.Earned)
	}
}

// TestEvaluateKeepsEarned verifies a broken streak does not revoke awards.
func TestEvaluateKeepsEarned(t *testing.T) {
	ev := DefaultCatalog().Evaluate([]string{"streak-5"}, Snapshot{WorkoutsCompleted: 2, CurrentStreak: 1})
	if !slices.Contains(ev.Earned, "streak-5") {
		t.Error("streak-5 was dropped from the earned set")
	}
}

// TestEvaluateDoesNotAliasInput verifies the caller's slice is left intact.
func TestEvaluateDoesNotAliasInput(t *testing.T) {
	earned := make([]string, 0, 8)
	earned = append(earned, "first-workout")
	DefaultCatalog().Evaluate(earned, Snapshot{WorkoutsCompleted: 7})
	if len(earned) != 1 || earned[:2][1] != "" {
		t.Errorf("input slice modified: %v", earned[:2])
	}
}

// TestRuleHolds covers each comparison operator.
func TestRuleHolds(t *testing.T) {
	s := Snapshot{WorkoutsCompleted: 5, CurrentStreak: 2}
	tests := []struct {
		rule Rule
		want bool
	}{
		{Rule{FieldWorkoutsCompleted, OpGTE, 5}, true},
		{Rule{FieldWorkoutsCompleted, OpGT, 5}, false},
		{Rule{FieldWorkoutsCompleted, OpEQ, 5}, true},
		{Rule{FieldCurrentStreak, OpGTE, 3}, false},
		{Rule{"longest_streak", OpGTE, 1}, false},
		{Rule{FieldCurrentStreak, "lt", 3}, false},
	}
	for _, tt := range tests {
		if got := tt.rule.Holds(s); got != tt.want {
			t.Errorf("%+v.Holds() = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

// TestRuleProgress verifies display progress is proportional and capped.
func TestRuleProgress(t *testing.T) {
	r := Rule{FieldCurrentStreak, OpGTE, 10}
	tests := []struct {
		streak int
		want   float64
	}{
		{0, 0},
		{4, 40},
		{10, 100},
		{25, 100},
	}
	for _, tt := range tests {
		if got := r.Progress(Snapshot{CurrentStreak: tt.streak}); got != tt.want {
			t.Errorf("Progress(streak=%d) = %v, want %v", tt.streak, got, tt.want)
		}
	}
}

// TestLoadCatalog verifies a YAML catalog loads in order.
func TestLoadCatalog(t *testing.T) {
	src := `
achievements:
  - id: first
    title: First
    points: 10
    rule: {field: workouts_completed, op: gte, threshold: 1}
  - id: three-days
    title: Three Days
    points: 30
    rule: {field: current_streak, op: gte, threshold: 3}
`
	c, err := LoadCatalog(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c) != 2 || c[0].ID != "first" || c[1].Rule.Field != FieldCurrentStreak {
		t.Errorf("catalog = %+v", c)
	}
}

// TestLoadCatalogErrors verifies malformed catalogs are rejected.
func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "achievements: []\n"},
		{"missing id", "achievements:\n  - points: 1\n    rule: {field: current_streak, op: gte, threshold: 1}\n"},
		{"duplicate id", "achievements:\n  - id: a\n    rule: {field: current_streak, op: gte, threshold: 1}\n  - id: a\n    rule: {field: current_streak, op: gte, threshold: 2}\n"},
		{"unknown field", "achievements:\n  - id: a\n    rule: {field: calories, op: gte, threshold: 1}\n"},
		{"unknown op", "achievements:\n  - id: a\n    rule: {field: current_streak, op: lt, threshold: 1}\n"},
		{"zero threshold", "achievements:\n  - id: a\n    rule: {field: current_streak, op: gte, threshold: 0}\n"},
		{"negative points", "achievements:\n  - id: a\n    points: -5\n    rule: {field: current_streak, op: gte, threshold: 1}\n"},
		{"unknown key", "achievements:\n  - id: a\n    colour: red\n    rule: {field: current_streak, op: gte, threshold: 1}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadCatalog(strings.NewReader(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

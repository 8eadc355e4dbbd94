package gamify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Field names a StudentStats counter that an achievement rule reads.
type Field string

const (
	FieldWorkoutsCompleted Field = "workouts_completed"
	FieldCurrentStreak     Field = "current_streak"
)

// Op is a comparison between a field value and a rule threshold.
type Op string

const (
	OpGTE Op = "gte"
	OpGT  Op = "gt"
	OpEQ  Op = "eq"
)

// Snapshot is the post-update view of the counters rules are evaluated on.
type Snapshot struct {
	WorkoutsCompleted int `json:"workouts_completed"`
	CurrentStreak     int `json:"current_streak"`
}

func (s Snapshot) value(f Field) (int, bool) {
	switch f {
	case FieldWorkoutsCompleted:
		return s.WorkoutsCompleted, true
	case FieldCurrentStreak:
		return s.CurrentStreak, true
	}
	return 0, false
}

// Rule is a serializable unlock predicate: Field Op Threshold.
type Rule struct {
	Field     Field `json:"field" yaml:"field"`
	Op        Op    `json:"op" yaml:"op"`
	Threshold int   `json:"threshold" yaml:"threshold"`
}

// Holds reports whether the rule is satisfied by s. Unknown fields and ops
// never hold.
func (r Rule) Holds(s Snapshot) bool {
	v, ok := s.value(r.Field)
	if !ok {
		return false
	}
	switch r.Op {
	case OpGTE:
		return v >= r.Threshold
	case OpGT:
		return v > r.Threshold
	case OpEQ:
		return v == r.Threshold
	}
	return false
}

// Progress returns how close s is to the threshold, in percent capped at 100.
func (r Rule) Progress(s Snapshot) float64 {
	if r.Holds(s) {
		return 100
	}
	v, ok := s.value(r.Field)
	if !ok || r.Threshold <= 0 {
		return 0
	}
	return clamp(float64(v)/float64(r.Threshold)*100, 0, 100)
}

func (r Rule) validate() error {
	if _, ok := (Snapshot{}).value(r.Field); !ok {
		return fmt.Errorf("unknown field %q", r.Field)
	}
	switch r.Op {
	case OpGTE, OpGT, OpEQ:
	default:
		return fmt.Errorf("unknown op %q", r.Op)
	}
	if r.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %d", r.Threshold)
	}
	return nil
}

// Achievement is one catalog entry.
type Achievement struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Icon        string `json:"icon" yaml:"icon"`
	Points      int    `json:"points" yaml:"points"`
	Rule        Rule   `json:"rule" yaml:"rule"`
}

// Catalog is the ordered, read-only list of achievements. Evaluation order
// is catalog order.
type Catalog []Achievement

// DefaultCatalog returns the built-in achievement table.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "first-workout", Title: "First Step", Description: "Complete your first workout", Icon: "target", Points: 50,
			Rule: Rule{FieldWorkoutsCompleted, OpGTE, 1}},
		{ID: "week-warrior", Title: "Weekly Warrior", Description: "Complete 7 workouts", Icon: "calendar", Points: 100,
			Rule: Rule{FieldWorkoutsCompleted, OpGTE, 7}},
		{ID: "streak-5", Title: "5-Day Streak", Description: "Train 5 days in a row", Icon: "flame", Points: 100,
			Rule: Rule{FieldCurrentStreak, OpGTE, 5}},
		{ID: "streak-10", Title: "Streak Master", Description: "Train 10 days in a row", Icon: "flame", Points: 200,
			Rule: Rule{FieldCurrentStreak, OpGTE, 10}},
		{ID: "streak-30", Title: "Consistency Champion", Description: "Train 30 days in a row", Icon: "trophy", Points: 500,
			Rule: Rule{FieldCurrentStreak, OpGTE, 30}},
		{ID: "monthly-champion", Title: "Monthly Champion", Description: "Complete 20 workouts", Icon: "trophy", Points: 300,
			Rule: Rule{FieldWorkoutsCompleted, OpGTE, 20}},
		{ID: "perfect-form", Title: "Perfect Form", Description: "Complete 50 workouts", Icon: "star", Points: 150,
			Rule: Rule{FieldWorkoutsCompleted, OpGTE, 50}},
		{ID: "dedication", Title: "Total Dedication", Description: "Complete 100 workouts", Icon: "award", Points: 500,
			Rule: Rule{FieldWorkoutsCompleted, OpGTE, 100}},
	}
}

// Validate checks ids are present and unique and every rule is well formed.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return errors.New("catalog is empty")
	}
	seen := make(map[string]bool, len(c))
	for i, a := range c {
		if a.ID == "" {
			return fmt.Errorf("achievement %d: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("achievement %q: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if a.Points < 0 {
			return fmt.Errorf("achievement %q: points must not be negative", a.ID)
		}
		if err := a.Rule.validate(); err != nil {
			return fmt.Errorf("achievement %q: %w", a.ID, err)
		}
	}
	return nil
}

// Lookup returns the achievement with the given id.
func (c Catalog) Lookup(id string) (Achievement, bool) {
	i := slices.IndexFunc(c, func(a Achievement) bool { return a.ID == id })
	if i < 0 {
		return Achievement{}, false
	}
	return c[i], true
}

type catalogFile struct {
	Achievements Catalog `yaml:"achievements"`
}

// LoadCatalog decodes and validates a YAML catalog of the form
//
//	achievements:
//	  - id: first-workout
//	    points: 50
//	    rule: {field: workouts_completed, op: gte, threshold: 1}
func LoadCatalog(r io.Reader) (Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := f.Achievements.Validate(); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}
	return f.Achievements, nil
}

// LoadCatalogFile reads a catalog from path.
func LoadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Evaluation is the result of checking a catalog against a snapshot.
type Evaluation struct {
	NewlyEarned []string
	BonusPoints int
	// Earned is the full earned set after this evaluation.
	Earned []string
}

// Evaluate awards every achievement whose rule holds on s and that is not in
// earned yet. The earned set only grows: ids already present are never
// awarded twice and are kept even if their rule no longer holds.
func (c Catalog) Evaluate(earned []string, s Snapshot) Evaluation {
	ev := Evaluation{Earned: slices.Clone(earned)}
	for _, a := range c {
		if slices.Contains(ev.Earned, a.ID) {
			continue
		}
		if !a.Rule.Holds(s) {
			continue
		}
		ev.NewlyEarned = append(ev.NewlyEarned, a.ID)
		ev.Earned = append(ev.Earned, a.ID)
		ev.BonusPoints += a.Points
	}
	return ev
}

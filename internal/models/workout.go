package models

import (
	"time"

	"github.com/google/uuid"
)

// Exercise is one entry of a workout. It carries either Sets×Reps or a
// DurationSec, and a fixed rest between sets.
type Exercise struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	MachineName   string `json:"machine_name,omitempty" yaml:"machine_name"`
	PrimaryMuscle string `json:"primary_muscle,omitempty" yaml:"primary_muscle"`
	Sets          int    `json:"sets,omitempty" yaml:"sets"`
	Reps          int    `json:"reps,omitempty" yaml:"reps"`
	DurationSec   int    `json:"duration_sec,omitempty" yaml:"duration_sec"`
	RestSeconds   int    `json:"rest_seconds" yaml:"rest_seconds"`
}

// SetCount returns the number of sets to perform. Timed exercises and
// exercises without an explicit set count are a single set.
func (e Exercise) SetCount() int {
	if e.Sets < 1 {
		return 1
	}
	return e.Sets
}

// Workout is an ordered list of exercises. Order defines session traversal.
type Workout struct {
	ID              uuid.UUID  `json:"id"`
	UserID          int        `json:"user_id"`
	Name            string     `json:"name"`
	DurationMinutes int        `json:"duration_minutes"`
	MusclesTargeted []string   `json:"muscles_targeted"`
	Exercises       []Exercise `json:"exercises"`
	LastDone        *time.Time `json:"last_done,omitempty"`
}

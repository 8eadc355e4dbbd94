package models

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// workoutFile is the YAML layout of a workout definition on disk.
type workoutFile struct {
	ID              string     `yaml:"id"`
	Name            string     `yaml:"name"`
	DurationMinutes int        `yaml:"duration_minutes"`
	MusclesTargeted []string   `yaml:"muscles_targeted"`
	Exercises       []Exercise `yaml:"exercises"`
}

// ParseWorkoutFile decodes a YAML workout definition. A missing id gets a
// fresh random UUID so ad-hoc files can still be run.
func ParseWorkoutFile(r io.Reader) (*Workout, error) {
	var f workoutFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding workout file: %w", err)
	}

	id := uuid.New()
	if f.ID != "" {
		parsed, err := uuid.Parse(f.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid workout id %q: %w", f.ID, err)
		}
		id = parsed
	}
	if f.Name == "" {
		return nil, fmt.Errorf("workout name is required")
	}
	for i, ex := range f.Exercises {
		if ex.Name == "" {
			return nil, fmt.Errorf("exercise %d: name is required", i+1)
		}
		if ex.RestSeconds < 0 {
			return nil, fmt.Errorf("exercise %q: rest_seconds must not be negative", ex.Name)
		}
	}

	return &Workout{
		ID:              id,
		Name:            f.Name,
		DurationMinutes: f.DurationMinutes,
		MusclesTargeted: f.MusclesTargeted,
		Exercises:       f.Exercises,
	}, nil
}

// LoadWorkoutFile reads and parses a YAML workout definition from path.
func LoadWorkoutFile(path string) (*Workout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening workout file: %w", err)
	}
	defer f.Close()
	return ParseWorkoutFile(f)
}

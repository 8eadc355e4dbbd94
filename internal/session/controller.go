package session

import (
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/google/uuid"
)

// Phase is the state of a live session.
type Phase string

const (
	PhaseExercising Phase = "exercising"
	PhaseResting    Phase = "resting"
	PhasePaused     Phase = "paused"
	PhaseFinished   Phase = "finished"
	PhaseEmpty      Phase = "empty"
	PhaseAbandoned  Phase = "abandoned"
)

// Terminal reports whether no further transitions are accepted.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseEmpty || p == PhaseAbandoned
}

// Finished is emitted once when a session reaches PhaseFinished.
type Finished struct {
	WorkoutID     uuid.UUID `json:"workout_id"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	ExerciseCount int       `json:"exercise_count"`
}

// Snapshot is the read-only view of a session used for rendering.
type Snapshot struct {
	Phase                Phase            `json:"phase"`
	WorkoutID            uuid.UUID        `json:"workout_id"`
	ExerciseIndex        int              `json:"exercise_index"`
	SetIndex             int              `json:"set_index"`
	TotalSets            int              `json:"total_sets"`
	TotalExercises       int              `json:"total_exercises"`
	Exercise             *models.Exercise `json:"exercise,omitempty"`
	RestRemainingSeconds int              `json:"rest_remaining_seconds"`
	ElapsedMs            int64            `json:"elapsed_ms"`
	ProgressPercent      float64          `json:"progress_percent"`
}

// Controller drives one workout session through its exercises, sets and
// rest intervals. It is not safe for concurrent use; callers serialize
// actions and ticks.
//
// Two clocks are involved: elapsed time is the wall-clock difference from
// session start (pausing does not stop it), while the rest countdown only
// moves on Tick and halts while paused.
type Controller struct {
	workout  models.Workout
	clock    Clock
	onFinish func(Finished)

	phase         Phase
	exerciseIndex int
	setIndex      int
	rest          *RestTimer
	start         time.Time
	end           time.Time
}

// New starts a session for w. A workout without exercises yields an Empty
// session. onFinish may be nil.
func New(w models.Workout, clock Clock, onFinish func(Finished)) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Controller{
		workout:  w,
		clock:    clock,
		onFinish: onFinish,
		start:    clock.Now(),
	}
	if len(w.Exercises) == 0 {
		c.phase = PhaseEmpty
		c.end = c.start
		return c
	}
	c.phase = PhaseExercising
	c.setIndex = 1
	return c
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) current() models.Exercise {
	return c.workout.Exercises[c.exerciseIndex]
}

// CompleteSet ends the current set and starts the rest countdown.
// Only valid while exercising.
func (c *Controller) CompleteSet() bool {
	if c.phase != PhaseExercising {
		return false
	}
	c.rest = NewRestTimer(c.current().RestSeconds)
	c.phase = PhaseResting
	return true
}

// AdvanceAfterRest moves to the next set, the next exercise, or finishes
// the session. Valid while resting; a paused rest is abandoned.
func (c *Controller) AdvanceAfterRest() bool {
	if c.phase != PhaseResting && c.phase != PhasePaused {
		return false
	}
	c.rest = nil
	if c.setIndex < c.current().SetCount() {
		c.setIndex++
		c.phase = PhaseExercising
		return true
	}
	c.nextExercise()
	return true
}

// SkipExercise abandons the remaining sets of the current exercise.
func (c *Controller) SkipExercise() bool {
	switch c.phase {
	case PhaseExercising, PhaseResting, PhasePaused:
	default:
		return false
	}
	c.rest = nil
	c.nextExercise()
	return true
}

// TogglePause flips between resting and paused. Only the rest countdown is
// affected; elapsed time keeps running.
func (c *Controller) TogglePause() bool {
	switch c.phase {
	case PhaseResting:
		c.rest.Pause()
		c.phase = PhasePaused
	case PhasePaused:
		c.rest.Resume()
		c.phase = PhaseResting
	default:
		return false
	}
	return true
}

// Tick advances the rest countdown by one second. It reports whether the
// countdown moved.
func (c *Controller) Tick() bool {
	if c.phase != PhaseResting || c.rest == nil {
		return false
	}
	return c.rest.Tick()
}

// Abandon tears the session down without emitting a completion.
func (c *Controller) Abandon() {
	if c.phase.Terminal() {
		return
	}
	c.rest = nil
	c.end = c.clock.Now()
	c.phase = PhaseAbandoned
}

// Elapsed returns wall-clock time since the session started, frozen once
// the session ends.
func (c *Controller) Elapsed() time.Duration {
	if c.phase.Terminal() {
		return c.end.Sub(c.start)
	}
	return c.clock.Now().Sub(c.start)
}

// Progress returns the share of sets consumed, in percent. The set being
// performed counts once it is completed, so the value reaches exactly 100
// only after the last set of the last exercise.
func (c *Controller) Progress() float64 {
	switch c.phase {
	case PhaseFinished:
		return 100
	case PhaseEmpty, PhaseAbandoned:
		return 0
	}
	done := c.setIndex
	if c.phase == PhaseExercising {
		done--
	}
	sets := c.current().SetCount()
	total := len(c.workout.Exercises)
	return (float64(c.exerciseIndex) + float64(done)/float64(sets)) / float64(total) * 100
}

// Snapshot returns the read-only session view.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Phase:           c.phase,
		WorkoutID:       c.workout.ID,
		ExerciseIndex:   c.exerciseIndex,
		SetIndex:        c.setIndex,
		TotalExercises:  len(c.workout.Exercises),
		ElapsedMs:       c.Elapsed().Milliseconds(),
		ProgressPercent: c.Progress(),
	}
	if !c.phase.Terminal() {
		ex := c.current()
		s.Exercise = &ex
		s.TotalSets = ex.SetCount()
	}
	if c.rest != nil {
		s.RestRemainingSeconds = c.rest.Remaining()
	}
	return s
}

func (c *Controller) nextExercise() {
	if c.exerciseIndex < len(c.workout.Exercises)-1 {
		c.exerciseIndex++
		c.setIndex = 1
		c.phase = PhaseExercising
		return
	}
	c.finish()
}

func (c *Controller) finish() {
	c.end = c.clock.Now()
	c.phase = PhaseFinished
	if c.onFinish != nil {
		c.onFinish(Finished{
			WorkoutID:     c.workout.ID,
			ElapsedMs:     c.end.Sub(c.start).Milliseconds(),
			ExerciseCount: len(c.workout.Exercises),
		})
	}
}

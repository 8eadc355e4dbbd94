// Package terminal runs a workout session interactively from line commands.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/claude/repstreak/internal/session"
)

// ErrQuit is returned when the user abandons the session.
var ErrQuit = errors.New("session abandoned")

const help = "commands: [enter]/d done set, n next, s skip exercise, p pause/resume, q quit"

// Run drives one session. Each line from lines is a command; each value on
// ticks advances the rest countdown by a second. It returns the finish
// event, nil for an empty workout, or ErrQuit.
func Run(ctx context.Context, w models.Workout, clock session.Clock, lines <-chan string, ticks <-chan time.Time, out io.Writer) (*session.Finished, error) {
	var finished *session.Finished
	ctrl := session.New(w, clock, func(f session.Finished) { finished = &f })

	if ctrl.Phase() == session.PhaseEmpty {
		fmt.Fprintf(out, "%s has no exercises\n", w.Name)
		return nil, nil
	}
	fmt.Fprintf(out, "%s: %d exercises\n%s\n", w.Name, len(w.Exercises), help)
	render(out, ctrl.Snapshot())

	for {
		select {
		case <-ctx.Done():
			ctrl.Abandon()
			return nil, ctx.Err()

		case <-ticks:
			if ctrl.Tick() {
				snap := ctrl.Snapshot()
				if snap.RestRemainingSeconds%10 == 0 || snap.RestRemainingSeconds <= 3 {
					render(out, snap)
				}
			}

		case line, ok := <-lines:
			if !ok {
				ctrl.Abandon()
				return nil, ErrQuit
			}
			var accepted bool
			switch strings.TrimSpace(strings.ToLower(line)) {
			case "", "d":
				accepted = ctrl.CompleteSet()
			case "n":
				accepted = ctrl.AdvanceAfterRest()
			case "s":
				accepted = ctrl.SkipExercise()
			case "p":
				accepted = ctrl.TogglePause()
			case "q":
				ctrl.Abandon()
				fmt.Fprintln(out, "abandoned")
				return nil, ErrQuit
			default:
				fmt.Fprintln(out, help)
				continue
			}
			if !accepted {
				fmt.Fprintf(out, "not available while %s\n", ctrl.Phase())
				continue
			}
			render(out, ctrl.Snapshot())
			if finished != nil {
				return finished, nil
			}
		}
	}
}

func render(out io.Writer, s session.Snapshot) {
	elapsed := (time.Duration(s.ElapsedMs) * time.Millisecond).Truncate(time.Second)
	prefix := fmt.Sprintf("[%3.0f%% %s]", s.ProgressPercent, elapsed)
	switch s.Phase {
	case session.PhaseFinished:
		fmt.Fprintf(out, "%s workout complete\n", prefix)
	case session.PhaseResting:
		fmt.Fprintf(out, "%s rest %ds\n", prefix, s.RestRemainingSeconds)
	case session.PhasePaused:
		fmt.Fprintf(out, "%s paused, %ds rest left\n", prefix, s.RestRemainingSeconds)
	case session.PhaseExercising:
		fmt.Fprintf(out, "%s %s set %d/%d%s\n", prefix, s.Exercise.Name, s.SetIndex, s.TotalSets, target(*s.Exercise))
	}
}

func target(ex models.Exercise) string {
	switch {
	case ex.DurationSec > 0:
		return fmt.Sprintf(" (%ds)", ex.DurationSec)
	case ex.Reps > 0:
		return fmt.Sprintf(" (%d reps)", ex.Reps)
	}
	return ""
}

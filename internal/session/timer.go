package session

// RestTimer counts down whole seconds of rest. It has no goroutine of its
// own: the owner calls Tick once per second, and a paused timer ignores ticks.
type RestTimer struct {
	remaining int
	paused    bool
}

// NewRestTimer starts a countdown at seconds. Negative values start at zero.
func NewRestTimer(seconds int) *RestTimer {
	if seconds < 0 {
		seconds = 0
	}
	return &RestTimer{remaining: seconds}
}

// Tick decrements the countdown by one second. It reports whether the
// countdown moved.
func (t *RestTimer) Tick() bool {
	if t.paused || t.remaining == 0 {
		return false
	}
	t.remaining--
	return true
}

// Remaining returns the seconds left.
func (t *RestTimer) Remaining() int { return t.remaining }

// Done reports whether the countdown reached zero.
func (t *RestTimer) Done() bool { return t.remaining == 0 }

// Pause halts the countdown.
func (t *RestTimer) Pause() { t.paused = true }

// Resume continues a paused countdown.
func (t *RestTimer) Resume() { t.paused = false }

// Paused reports whether the countdown is halted.
func (t *RestTimer) Paused() bool { return t.paused }

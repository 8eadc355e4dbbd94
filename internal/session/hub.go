package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repstreak/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown session ids or sessions owned by
// another user.
var ErrNotFound = errors.New("session not found")

// Action is a user input applied to a hosted session.
type Action string

const (
	ActionCompleteSet Action = "complete-set"
	ActionAdvance     Action = "advance"
	ActionSkip        Action = "skip"
	ActionPause       Action = "pause"
)

// ParseAction maps a URL segment to an Action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionCompleteSet, ActionAdvance, ActionSkip, ActionPause:
		return a, true
	}
	return "", false
}

// Result is the outcome of applying an action to a hosted session.
type Result struct {
	Snapshot Snapshot  `json:"session"`
	Accepted bool      `json:"accepted"`
	Finished *Finished `json:"finished,omitempty"`
}

// hosted is one live session plus its SSE subscribers. lastSeen is the time
// of the owner's last request.
type hosted struct {
	mu       sync.Mutex
	id       uuid.UUID
	userID   int
	ctrl     *Controller
	finished *Finished
	subs     map[chan Snapshot]struct{}
	lastSeen time.Time
}

func (h *hosted) broadcast(s Snapshot) {
	for ch := range h.subs {
		select {
		case ch <- s:
		default:
			// slow subscriber, skip
		}
	}
}

func (h *hosted) closeSubs() {
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}

// Hub hosts live sessions for the HTTP API. Each session is guarded by its
// own mutex, so actions and ticks on one session never interleave while
// different sessions proceed independently.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*hosted
	clock    Clock
	idle     time.Duration
	log      *slog.Logger
}

// DefaultIdleTimeout is how long a session without requests or subscribers
// is kept before Tick abandons it.
const DefaultIdleTimeout = 30 * time.Minute

// NewHub creates an empty Hub. A nil clock uses the system clock.
func NewHub(clock Clock, log *slog.Logger) *Hub {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Hub{
		sessions: make(map[uuid.UUID]*hosted),
		clock:    clock,
		idle:     DefaultIdleTimeout,
		log:      log,
	}
}

// SetIdleTimeout changes how long an unattended session is kept. Zero or
// less keeps sessions until they finish or are abandoned explicitly.
func (h *Hub) SetIdleTimeout(d time.Duration) {
	h.mu.Lock()
	h.idle = d
	h.mu.Unlock()
}

// Start begins a session for userID. Empty workouts are not hosted: the
// Empty snapshot is returned with a nil id.
func (h *Hub) Start(userID int, w models.Workout) (uuid.UUID, Snapshot) {
	hs := &hosted{
		id:     uuid.New(),
		userID:   userID,
		subs:     make(map[chan Snapshot]struct{}),
		lastSeen: h.clock.Now(),
	}
	hs.ctrl = New(w, h.clock, func(f Finished) { hs.finished = &f })
	snap := hs.ctrl.Snapshot()
	if snap.Phase == PhaseEmpty {
		return uuid.Nil, snap
	}

	h.mu.Lock()
	h.sessions[hs.id] = hs
	h.mu.Unlock()

	h.log.Info("session started", "session", hs.id, "user_id", userID, "workout", w.ID, "exercises", len(w.Exercises))
	return hs.id, snap
}

func (h *Hub) lookup(id uuid.UUID, userID int) (*hosted, error) {
	h.mu.Lock()
	hs, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok || hs.userID != userID {
		return nil, ErrNotFound
	}
	return hs, nil
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// Get returns the current snapshot of a session.
func (h *Hub) Get(id uuid.UUID, userID int) (Snapshot, error) {
	hs, err := h.lookup(id, userID)
	if err != nil {
		return Snapshot{}, err
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.lastSeen = h.clock.Now()
	return hs.ctrl.Snapshot(), nil
}

// Do applies an action. Out-of-phase actions are reported as not accepted.
// When the action finishes the session it is removed from the hub and the
// completion event is returned exactly once.
func (h *Hub) Do(id uuid.UUID, userID int, action Action) (*Result, error) {
	hs, err := h.lookup(id, userID)
	if err != nil {
		return nil, err
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.lastSeen = h.clock.Now()

	var accepted bool
	switch action {
	case ActionCompleteSet:
		accepted = hs.ctrl.CompleteSet()
	case ActionAdvance:
		accepted = hs.ctrl.AdvanceAfterRest()
	case ActionSkip:
		accepted = hs.ctrl.SkipExercise()
	case ActionPause:
		accepted = hs.ctrl.TogglePause()
	}

	res := &Result{Snapshot: hs.ctrl.Snapshot(), Accepted: accepted}
	if accepted {
		hs.broadcast(res.Snapshot)
	}
	if hs.finished != nil {
		res.Finished = hs.finished
		hs.finished = nil
		hs.closeSubs()
		h.remove(id)
		h.log.Info("session finished", "session", id, "user_id", userID, "elapsed_ms", res.Finished.ElapsedMs)
	}
	return res, nil
}

// Abandon discards a session without recording anything.
func (h *Hub) Abandon(id uuid.UUID, userID int) error {
	hs, err := h.lookup(id, userID)
	if err != nil {
		return err
	}
	hs.mu.Lock()
	hs.ctrl.Abandon()
	hs.closeSubs()
	hs.mu.Unlock()
	h.remove(id)
	h.log.Info("session abandoned", "session", id, "user_id", userID)
	return nil
}

// Subscribe returns a channel of snapshots pushed on every tick and action.
// The channel is closed when the session ends; call cancel to stop early.
func (h *Hub) Subscribe(id uuid.UUID, userID int) (<-chan Snapshot, func(), error) {
	hs, err := h.lookup(id, userID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan Snapshot, 32)
	hs.mu.Lock()
	if hs.subs == nil {
		hs.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	hs.subs[ch] = struct{}{}
	hs.mu.Unlock()

	cancel := func() {
		hs.mu.Lock()
		if _, ok := hs.subs[ch]; ok {
			delete(hs.subs, ch)
			close(ch)
		}
		hs.mu.Unlock()
	}
	return ch, cancel, nil
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Tick advances every session by one second and pushes snapshots to
// subscribers. Elapsed time is refreshed even when no countdown moves.
// Sessions nobody has touched or watched for the idle timeout are abandoned.
func (h *Hub) Tick() {
	h.mu.Lock()
	idle := h.idle
	live := make([]*hosted, 0, len(h.sessions))
	for _, hs := range h.sessions {
		live = append(live, hs)
	}
	h.mu.Unlock()

	now := h.clock.Now()
	for _, hs := range live {
		hs.mu.Lock()
		if len(hs.subs) > 0 {
			hs.lastSeen = now
		}
		if idle > 0 && now.Sub(hs.lastSeen) >= idle {
			hs.ctrl.Abandon()
			hs.closeSubs()
			hs.mu.Unlock()
			h.remove(hs.id)
			h.log.Info("session expired", "session", hs.id, "user_id", hs.userID, "idle", idle.String())
			continue
		}
		hs.ctrl.Tick()
		if len(hs.subs) > 0 {
			hs.broadcast(hs.ctrl.Snapshot())
		}
		hs.mu.Unlock()
	}
}

// Run ticks the hub once per second until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}

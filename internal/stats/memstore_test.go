package stats

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/claude/repstreak/internal/models"
)

// memStore is an in-memory Store. Transactions work on copies and commit
// only when fn returns nil.
type memStore struct {
	mu          sync.Mutex
	stats       map[int]models.StudentStats
	earned      map[int][]string
	completions map[int][]models.CompletionRecord
	failPut     error
}

func newMemStore() *memStore {
	return &memStore{
		stats:       make(map[int]models.StudentStats),
		earned:      make(map[int][]string),
		completions: make(map[int][]models.CompletionRecord),
	}
}

type memTx struct {
	s           *memStore
	userID      int
	stats       *models.StudentStats
	earned      []string
	completions []models.CompletionRecord
}

func (m *memStore) WithinUser(ctx context.Context, userID int, fn func(tx UserTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		s:           m,
		userID:      userID,
		earned:      slices.Clone(m.earned[userID]),
		completions: slices.Clone(m.completions[userID]),
	}
	if st, ok := m.stats[userID]; ok {
		tx.stats = &st
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.stats != nil {
		m.stats[userID] = *tx.stats
	}
	m.earned[userID] = tx.earned
	m.completions[userID] = tx.completions
	return nil
}

func (t *memTx) GetStudentStats(ctx context.Context) (*models.StudentStats, error) {
	if t.stats == nil {
		return nil, nil
	}
	st := *t.stats
	return &st, nil
}

func (t *memTx) PutStudentStats(ctx context.Context, s models.StudentStats) error {
	if t.s.failPut != nil {
		return t.s.failPut
	}
	t.stats = &s
	return nil
}

func (t *memTx) GetAchievementState(ctx context.Context) (models.AchievementState, error) {
	return models.AchievementState{UserID: t.userID, Earned: slices.Clone(t.earned)}, nil
}

func (t *memTx) PutAchievementState(ctx context.Context, s models.AchievementState) error {
	t.earned = slices.Clone(s.Earned)
	return nil
}

func (t *memTx) AppendCompletion(ctx context.Context, rec models.CompletionRecord) error {
	for _, c := range t.completions {
		if c.ID == rec.ID {
			return ErrDuplicateCompletion
		}
	}
	t.completions = append(t.completions, rec)
	return nil
}

func (t *memTx) GetCompletion(ctx context.Context, id int64) (*models.CompletionRecord, error) {
	i := slices.IndexFunc(t.completions, func(c models.CompletionRecord) bool { return c.ID == id })
	if i < 0 {
		return nil, nil
	}
	rec := t.completions[i]
	return &rec, nil
}

func (m *memStore) GetStudentStats(ctx context.Context, userID int) (*models.StudentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStore) GetAchievementState(ctx context.Context, userID int) (models.AchievementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.AchievementState{UserID: userID, Earned: slices.Clone(m.earned[userID])}, nil
}

func (m *memStore) CreateStudentStats(ctx context.Context, userID int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stats[userID]; ok {
		return false, nil
	}
	m.stats[userID] = models.StudentStats{UserID: userID, UpdatedAt: now}
	return true, nil
}

func (m *memStore) ListCompletions(ctx context.Context, userID int, start, end time.Time) ([]models.CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CompletionRecord
	for _, c := range m.completions[userID] {
		if !c.CompletedAt.Before(start) && c.CompletedAt.Before(end) {
			out = append(out, c)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (m *memStore) CountCompletionsSince(ctx context.Context, userID int, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.completions[userID] {
		if !c.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

var errDiskFull = errors.New("disk full")

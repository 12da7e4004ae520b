package assessment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quizlab/adaptive-backend/internal/models"
)

type abilityKey struct{ student, unit int64 }

// memRepo is an in-memory Repository. SubmitAttempt holds the mutex across
// the whole read-modify-write, standing in for the row lock.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	units     map[int64]models.SkillUnit
	items     map[int64]models.Item
	abilities map[abilityKey]models.StudentAbility
	attempts  []models.Attempt
	responses map[int64][]models.AttemptResponse

	listItemsCalls   int
	lastHistoryLimit int
	failSubmit       error
}

func newMemRepo() *memRepo {
	return &memRepo{
		units:     map[int64]models.SkillUnit{},
		items:     map[int64]models.Item{},
		abilities: map[abilityKey]models.StudentAbility{},
		responses: map[int64][]models.AttemptResponse{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) CreateSkillUnit(_ context.Context, req models.CreateSkillUnitRequest) (*models.SkillUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.units {
		if u.Code == req.Code {
			return nil, ErrConflict
		}
	}
	su := models.SkillUnit{ID: m.id(), Code: req.Code, Title: req.Title, Outcome: req.Outcome, CreatedAt: time.Now()}
	m.units[su.ID] = su
	return &su, nil
}

func (m *memRepo) GetSkillUnit(_ context.Context, id int64) (*models.SkillUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	su, ok := m.units[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &su, nil
}

func (m *memRepo) ListSkillUnits(_ context.Context) ([]models.SkillUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SkillUnit
	for _, u := range m.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memRepo) CreateItems(_ context.Context, skillUnitID int64, items []models.Item) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		it.ID = m.id()
		it.SkillUnitID = skillUnitID
		it.CreatedAt = time.Now()
		m.items[it.ID] = it
		out = append(out, it)
	}
	return out, nil
}

func (m *memRepo) sortedItems(keep func(models.Item) bool) []models.Item {
	var out []models.Item
	for _, it := range m.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRepo) ListItems(_ context.Context, skillUnitID int64) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listItemsCalls++
	return m.sortedItems(func(it models.Item) bool { return it.SkillUnitID == skillUnitID }), nil
}

func (m *memRepo) GetItems(_ context.Context, ids []int64) ([]models.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return m.sortedItems(func(it models.Item) bool { return want[it.ID] }), nil
}

func (m *memRepo) ListItemStats(_ context.Context, minResponses int) ([]models.ItemStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ItemStats
	for _, it := range m.sortedItems(func(it models.Item) bool { return it.TimesServed >= minResponses }) {
		out = append(out, models.ItemStats{
			ItemID: it.ID, SkillUnitID: it.SkillUnitID, Difficulty: it.Difficulty,
			TimesServed: it.TimesServed, TimesCorrect: it.TimesCorrect,
		})
	}
	return out, nil
}

func (m *memRepo) UpdateItemDifficulty(_ context.Context, itemID int64, difficulty float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	it.Difficulty = difficulty
	it.DifficultyLabel = models.LabelForDifficulty(difficulty)
	it.CalibratedAt = &now
	m.items[itemID] = it
	return nil
}

func (m *memRepo) GetAbility(_ context.Context, studentID, skillUnitID int64) (*models.StudentAbility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ab, ok := m.abilities[abilityKey{studentID, skillUnitID}]
	if !ok {
		ab = models.StudentAbility{StudentID: studentID, SkillUnitID: skillUnitID}
	}
	return &ab, nil
}

func (m *memRepo) SubmitAttempt(_ context.Context, rec AttemptRecord, estimate EstimateFunc) (*models.Attempt, *models.StudentAbility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubmit != nil {
		return nil, nil, m.failSubmit
	}

	key := abilityKey{rec.StudentID, rec.SkillUnitID}
	current, ok := m.abilities[key]
	if !ok {
		current = models.StudentAbility{StudentID: rec.StudentID, SkillUnitID: rec.SkillUnitID}
	}

	theta, se := estimate(current)
	next := current
	next.Theta = theta
	next.AttemptsCount++
	next.UpdatedAt = time.Now()
	m.abilities[key] = next

	a := models.Attempt{
		ID: m.id(), StudentID: rec.StudentID, SkillUnitID: rec.SkillUnitID,
		ThetaBefore: current.Theta, ThetaAfter: theta,
		StandardError: models.FiniteOrNil(se),
		ItemCount:     len(rec.Responses), CreatedAt: time.Now(),
	}
	for _, r := range rec.Responses {
		it := m.items[r.ItemID]
		it.TimesServed++
		if r.Correct {
			it.TimesCorrect++
			a.CorrectCount++
		}
		m.items[r.ItemID] = it
	}
	m.attempts = append(m.attempts, a)
	m.responses[a.ID] = rec.Responses
	return &a, &next, nil
}

func (m *memRepo) ListAttempts(_ context.Context, studentID, skillUnitID int64, limit int) ([]models.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHistoryLimit = limit
	var out []models.Attempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.attempts[i]
		if a.StudentID == studentID && a.SkillUnitID == skillUnitID {
			out = append(out, a)
		}
	}
	return out, nil
}

// memCache is an in-memory PoolCache.
type memCache struct {
	mu          sync.Mutex
	pools       map[int64][]models.Item
	invalidated []int64
	failGet     bool
}

func newMemCache() *memCache {
	return &memCache{pools: map[int64][]models.Item{}}
}

func (c *memCache) GetPool(_ context.Context, id int64) ([]models.Item, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	items, ok := c.pools[id]
	return items, ok, nil
}

func (c *memCache) SetPool(_ context.Context, id int64, items []models.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[id] = items
	return nil
}

func (c *memCache) InvalidatePool(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

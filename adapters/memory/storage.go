package memory

import (
	"context"
	"sync"

	"loyaltykit/core"
	"loyaltykit/engine"
)

// Store is a concurrent in-memory Storage implementation. It enforces the
// same uniqueness rules as the SQL adapter so the engine's duplicate-insert
// handling can be exercised without a database.
type Store struct {
	mu           sync.RWMutex
	achievements map[string][]*core.AchievementState // subject key -> instances
	byID         map[string]*core.AchievementState
	stats        map[string]*core.Stats // subject key -> row
	statsByID    map[string]*core.Stats
}

func New() *Store {
	return &Store{
		achievements: map[string][]*core.AchievementState{},
		byID:         map[string]*core.AchievementState{},
		stats:        map[string]*core.Stats{},
		statsByID:    map[string]*core.Stats{},
	}
}

func (s *Store) SelectAchievements(_ context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.achievements[core.SubjectKey(customer, center)]
	out := make([]core.AchievementState, 0, len(rows))
	for _, r := range rows {
		out = append(out, cloneAchievement(*r))
	}
	return out, nil
}

func (s *Store) InsertAchievements(_ context.Context, instances []core.AchievementState) error {
	if len(instances) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.SubjectKey(instances[0].CustomerID, instances[0].CenterID)
	if len(s.achievements[key]) > 0 {
		return engine.ErrDuplicate
	}
	for _, inst := range instances {
		cp := cloneAchievement(inst)
		s.achievements[key] = append(s.achievements[key], &cp)
		s.byID[cp.ID] = &cp
	}
	return nil
}

func (s *Store) UpdateAchievement(_ context.Context, id string, patch engine.AchievementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.byID[id]
	if !ok {
		return engine.ErrNotFound
	}
	row.Progress = patch.Progress
	// unlock is monotonic: never downgrade, never reset the timestamp
	if patch.Unlocked && !row.Unlocked {
		row.Unlocked = true
		if patch.UnlockedAt != nil {
			t := *patch.UnlockedAt
			row.UnlockedAt = &t
		}
	}
	return nil
}

func (s *Store) SelectStats(_ context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.stats[core.SubjectKey(customer, center)]
	if !ok {
		return nil, nil
	}
	cp := row.Clone()
	return &cp, nil
}

func (s *Store) InsertStats(_ context.Context, stats core.Stats) (core.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.SubjectKey(stats.CustomerID, stats.CenterID)
	if _, exists := s.stats[key]; exists {
		return core.Stats{}, engine.ErrDuplicate
	}
	cp := stats.Clone()
	s.stats[key] = &cp
	s.statsByID[cp.ID] = &cp
	return cp.Clone(), nil
}

func (s *Store) UpdateStats(_ context.Context, id string, patch engine.StatsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.statsByID[id]
	if !ok {
		return engine.ErrNotFound
	}
	if patch.TotalXP != nil {
		row.TotalXP = *patch.TotalXP
	}
	if patch.Level != nil {
		row.Level = *patch.Level
	}
	if patch.CurrentStreak != nil {
		row.CurrentStreak = *patch.CurrentStreak
	}
	if patch.LongestStreak != nil {
		row.LongestStreak = *patch.LongestStreak
	}
	if patch.LastSyncDate != nil {
		d := *patch.LastSyncDate
		row.LastSyncDate = &d
	}
	if patch.TotalSyncs != nil {
		row.TotalSyncs = *patch.TotalSyncs
	}
	return nil
}

func cloneAchievement(a core.AchievementState) core.AchievementState {
	if a.UnlockedAt != nil {
		t := *a.UnlockedAt
		a.UnlockedAt = &t
	}
	return a
}

var _ engine.Storage = (*Store)(nil)

package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"loyaltykit/core"
	"loyaltykit/engine"
)

// Store persists entire state to a single JSON file.
// Suitable for demos and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data fileState
}

type subjectState struct {
	Achievements []core.AchievementState `json:"achievements"`
	Stats        *core.Stats             `json:"stats,omitempty"`
}

type fileState map[string]*subjectState // subject key -> state

func New(path string) (*Store, error) {
	s := &Store{path: path, data: fileState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &s.data)
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) get(customer core.CustomerID, center core.CenterID) *subjectState {
	key := core.SubjectKey(customer, center)
	st, ok := s.data[key]
	if !ok {
		st = &subjectState{}
		s.data[key] = st
	}
	return st
}

func (s *Store) SelectAchievements(_ context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(customer, center)
	out := make([]core.AchievementState, len(st.Achievements))
	copy(out, st.Achievements)
	return out, nil
}

func (s *Store) InsertAchievements(_ context.Context, instances []core.AchievementState) error {
	if len(instances) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(instances[0].CustomerID, instances[0].CenterID)
	if len(st.Achievements) > 0 {
		return engine.ErrDuplicate
	}
	st.Achievements = append(st.Achievements, instances...)
	return s.persist()
}

func (s *Store) UpdateAchievement(_ context.Context, id string, patch engine.AchievementPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.data {
		for i := range st.Achievements {
			row := &st.Achievements[i]
			if row.ID != id {
				continue
			}
			row.Progress = patch.Progress
			if patch.Unlocked && !row.Unlocked {
				row.Unlocked = true
				row.UnlockedAt = patch.UnlockedAt
			}
			return s.persist()
		}
	}
	return engine.ErrNotFound
}

func (s *Store) SelectStats(_ context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(customer, center)
	if st.Stats == nil {
		return nil, nil
	}
	cp := st.Stats.Clone()
	return &cp, nil
}

func (s *Store) InsertStats(_ context.Context, stats core.Stats) (core.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(stats.CustomerID, stats.CenterID)
	if st.Stats != nil {
		return core.Stats{}, engine.ErrDuplicate
	}
	cp := stats.Clone()
	st.Stats = &cp
	if err := s.persist(); err != nil {
		return core.Stats{}, err
	}
	return cp.Clone(), nil
}

func (s *Store) UpdateStats(_ context.Context, id string, patch engine.StatsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.data {
		if st.Stats == nil || st.Stats.ID != id {
			continue
		}
		row := st.Stats
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
		return s.persist()
	}
	return engine.ErrNotFound
}

var _ engine.Storage = (*Store)(nil)

package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loyaltykit/core"
	"loyaltykit/engine"
)

func TestStorePersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	instances := []core.AchievementState{
		{ID: "a1", CustomerID: "alice", CenterID: "centro", Type: core.AchFirstSync},
		{ID: "a2", CustomerID: "alice", CenterID: "centro", Type: core.AchSyncStreak3},
	}
	if err := store.InsertAchievements(context.Background(), instances); err != nil {
		t.Fatalf("insert achievements: %v", err)
	}
	if err := store.InsertAchievements(context.Background(), instances); err != engine.ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	created, err := store.InsertStats(context.Background(), core.Stats{ID: "st1", CustomerID: "alice", CenterID: "centro", Level: 1})
	if err != nil {
		t.Fatalf("insert stats: %v", err)
	}

	now := time.Now().UTC()
	if err := store.UpdateAchievement(context.Background(), "a1", engine.AchievementPatch{Progress: 1, Unlocked: true, UnlockedAt: &now}); err != nil {
		t.Fatalf("update achievement: %v", err)
	}
	xp := int64(60)
	if err := store.UpdateStats(context.Background(), created.ID, engine.StatsPatch{TotalXP: &xp}); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	// ensure file written
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s", path)
	}

	// reload
	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rows, err := reloaded.SelectAchievements(context.Background(), "alice", "centro")
	if err != nil || len(rows) != 2 {
		t.Fatalf("reload achievements: %d %v", len(rows), err)
	}
	for _, r := range rows {
		if r.ID == "a1" && (!r.Unlocked || r.UnlockedAt == nil) {
			t.Fatalf("unlock not persisted: %+v", r)
		}
	}
	stats, err := reloaded.SelectStats(context.Background(), "alice", "centro")
	if err != nil || stats == nil || stats.TotalXP != 60 {
		t.Fatalf("reload stats: %+v %v", stats, err)
	}
}

package memory

import (
	"context"
	"testing"
	"time"

	"loyaltykit/core"
	"loyaltykit/engine"
)

func seedInstances(customer core.CustomerID, center core.CenterID) []core.AchievementState {
	out := make([]core.AchievementState, 0, len(core.Catalog))
	for i, def := range core.Catalog {
		out = append(out, core.AchievementState{
			ID:         string(rune('a' + i)),
			CustomerID: customer,
			CenterID:   center,
			Type:       def.Type,
		})
	}
	return out
}

func TestMemoryStoreAchievements(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.InsertAchievements(ctx, seedInstances("c1", "centro")); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertAchievements(ctx, seedInstances("c1", "centro")); err != engine.ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	rows, err := s.SelectAchievements(ctx, "c1", "centro")
	if err != nil || len(rows) != len(core.Catalog) {
		t.Fatalf("got %d rows, err %v", len(rows), err)
	}

	now := time.Now().UTC()
	if err := s.UpdateAchievement(ctx, rows[0].ID, engine.AchievementPatch{Progress: 1, Unlocked: true, UnlockedAt: &now}); err != nil {
		t.Fatal(err)
	}
	// a later downgrade attempt must not re-lock or clear the timestamp
	if err := s.UpdateAchievement(ctx, rows[0].ID, engine.AchievementPatch{Progress: 1}); err != nil {
		t.Fatal(err)
	}
	rows, _ = s.SelectAchievements(ctx, "c1", "centro")
	var target *core.AchievementState
	for i := range rows {
		if rows[i].Unlocked {
			target = &rows[i]
		}
	}
	if target == nil || target.UnlockedAt == nil {
		t.Fatal("unlock did not stick")
	}

	if err := s.UpdateAchievement(ctx, "missing", engine.AchievementPatch{}); err != engine.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	s := New()
	ctx := context.Background()

	if row, err := s.SelectStats(ctx, "c1", "centro"); err != nil || row != nil {
		t.Fatalf("expected no stats yet, got %v %v", row, err)
	}

	created, err := s.InsertStats(ctx, core.Stats{ID: "st1", CustomerID: "c1", CenterID: "centro", Level: 1})
	if err != nil || created.ID != "st1" {
		t.Fatalf("insert: %v %v", created, err)
	}
	if _, err := s.InsertStats(ctx, core.Stats{ID: "st2", CustomerID: "c1", CenterID: "centro"}); err != engine.ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	xp := int64(60)
	syncs := int64(1)
	day := core.DateOnly(time.Now())
	if err := s.UpdateStats(ctx, "st1", engine.StatsPatch{TotalXP: &xp, TotalSyncs: &syncs, LastSyncDate: &day}); err != nil {
		t.Fatal(err)
	}
	row, _ := s.SelectStats(ctx, "c1", "centro")
	if row.TotalXP != 60 || row.TotalSyncs != 1 || row.LastSyncDate == nil {
		t.Fatalf("patch not applied: %+v", row)
	}
	// level untouched by a partial patch
	if row.Level != 1 {
		t.Fatalf("level changed unexpectedly: %d", row.Level)
	}
}

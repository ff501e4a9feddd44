package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	mem "loyaltykit/adapters/memory"
	"loyaltykit/core"
	"loyaltykit/engine"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*engine.LoyaltyService, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)}
	svc := engine.NewLoyaltyService(mem.New(), engine.NewEventBus(engine.DispatchSync), engine.WithClock(clk.now))
	t.Cleanup(svc.Close)
	return svc, clk
}

func achievementByType(snap engine.Snapshot, typ core.AchievementType) (core.AchievementState, bool) {
	for _, a := range snap.Achievements {
		if a.Type == typ {
			return a, true
		}
	}
	return core.AchievementState{}, false
}

func TestStateInitializesCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(snap.Achievements) != len(core.Catalog) {
		t.Fatalf("achievements = %d, want %d", len(snap.Achievements), len(core.Catalog))
	}
	for _, a := range snap.Achievements {
		if a.Unlocked || a.Progress != 0 {
			t.Fatalf("fresh instance %s should start locked at zero, got %+v", a.Type, a)
		}
	}
	if snap.Stats.Level != 1 || snap.Stats.TotalXP != 0 {
		t.Fatalf("fresh stats = %+v", snap.Stats)
	}

	// A second load must reuse the existing rows, not recreate them.
	again, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State again: %v", err)
	}
	if again.Stats.ID != snap.Stats.ID {
		t.Fatalf("stats row recreated: %s != %s", again.Stats.ID, snap.Stats.ID)
	}
	for i := range again.Achievements {
		if again.Achievements[i].ID != snap.Achievements[i].ID {
			t.Fatalf("achievement rows recreated")
		}
	}
}

func TestStateNormalizesCustomerID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	snap, err := svc.State(ctx, "  Alice  ", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Stats.CustomerID != "alice" {
		t.Fatalf("customer id = %q, want alice", snap.Stats.CustomerID)
	}
	if _, err := svc.State(ctx, "", "center-1"); err == nil {
		t.Fatal("expected error for empty customer id")
	}
	if _, err := svc.State(ctx, "alice", "bad center"); err == nil {
		t.Fatal("expected error for invalid center id")
	}
}

func TestFirstSyncAwardsBonus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("RecordSync: %v", err)
	}
	if result.Stats.CurrentStreak != 1 {
		t.Fatalf("streak = %d, want 1", result.Stats.CurrentStreak)
	}
	if result.Stats.TotalSyncs != 1 {
		t.Fatalf("total syncs = %d, want 1", result.Stats.TotalSyncs)
	}
	if result.XPAwarded != core.BaseSyncXP {
		t.Fatalf("sync xp = %d, want %d", result.XPAwarded, core.BaseSyncXP)
	}
	// Base sync XP plus the first-sync unlock reward.
	if result.Stats.TotalXP != 60 {
		t.Fatalf("total xp = %d, want 60", result.Stats.TotalXP)
	}

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	first, ok := achievementByType(snap, core.AchFirstSync)
	if !ok || !first.Unlocked {
		t.Fatalf("first_sync should be unlocked, got %+v", first)
	}
	if first.UnlockedAt == nil {
		t.Fatal("unlocked_at not recorded")
	}
	totals, _ := achievementByType(snap, core.AchTotalSyncs10)
	if totals.Progress != 1 {
		t.Fatalf("total_syncs_10 progress = %d, want 1", totals.Progress)
	}
}

func TestSameDayRepeatKeepsStreak(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordSync(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	clk.advance(4 * time.Hour)
	result, err := svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Stats.CurrentStreak != 1 {
		t.Fatalf("streak = %d, want 1", result.Stats.CurrentStreak)
	}
	if result.Stats.TotalSyncs != 2 {
		t.Fatalf("total syncs = %d, want 2", result.Stats.TotalSyncs)
	}
	if result.Stats.TotalXP != 70 {
		t.Fatalf("total xp = %d, want 70", result.Stats.TotalXP)
	}
}

func TestStreakIncrementAndReset(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordSync(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("day 0: %v", err)
	}
	clk.advance(24 * time.Hour)
	result, err := svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if result.Stats.CurrentStreak != 2 {
		t.Fatalf("day 1 streak = %d, want 2", result.Stats.CurrentStreak)
	}
	if result.XPAwarded != core.SyncXP(2) {
		t.Fatalf("day 1 xp = %d, want %d", result.XPAwarded, core.SyncXP(2))
	}

	// Skipping a day resets the streak but keeps the longest.
	clk.advance(48 * time.Hour)
	result, err = svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("day 3: %v", err)
	}
	if result.Stats.CurrentStreak != 1 {
		t.Fatalf("day 3 streak = %d, want 1", result.Stats.CurrentStreak)
	}
	if result.Stats.LongestStreak != 2 {
		t.Fatalf("longest streak = %d, want 2", result.Stats.LongestStreak)
	}
}

func TestBackwardDatedSyncKeepsStreakState(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	first, err := svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	lastDate := *first.Stats.LastSyncDate

	// Replayed or clock-skewed event dated before the stored sync date.
	clk.advance(-72 * time.Hour)
	result, err := svc.RecordSync(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("backdated sync: %v", err)
	}
	if result.Stats.CurrentStreak != 1 {
		t.Fatalf("streak = %d, want 1", result.Stats.CurrentStreak)
	}
	if result.Stats.TotalSyncs != 2 {
		t.Fatalf("total syncs = %d, want 2", result.Stats.TotalSyncs)
	}
	if result.XPAwarded == 0 {
		t.Fatal("backdated sync should still earn xp")
	}
	if result.Stats.LastSyncDate == nil || !result.Stats.LastSyncDate.Equal(lastDate) {
		t.Fatalf("last sync date moved backward: %v", result.Stats.LastSyncDate)
	}
}

func TestStreakMilestoneUnlocks(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	var unlocked []core.AchievementType
	svc.Subscribe(core.EventAchievementUnlocked, func(_ context.Context, e core.Event) {
		unlocked = append(unlocked, e.Achievement)
	})

	var last engine.SyncResult
	for day := 0; day < 3; day++ {
		var err error
		last, err = svc.RecordSync(ctx, "alice", "center-1")
		if err != nil {
			t.Fatalf("day %d: %v", day, err)
		}
		clk.advance(24 * time.Hour)
	}
	if last.Stats.CurrentStreak != 3 {
		t.Fatalf("streak = %d, want 3", last.Stats.CurrentStreak)
	}
	// 60 + 14 + 16 sync xp, plus the streak milestone reward.
	if last.Stats.TotalXP != 190 {
		t.Fatalf("total xp = %d, want 190", last.Stats.TotalXP)
	}
	if last.Level.Level != 2 {
		t.Fatalf("level = %d, want 2", last.Level.Level)
	}

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	streak3, _ := achievementByType(snap, core.AchSyncStreak3)
	if !streak3.Unlocked {
		t.Fatal("sync_streak_3 should be unlocked")
	}
	found := false
	for _, typ := range unlocked {
		if typ == core.AchSyncStreak3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("no unlock event for sync_streak_3, got %v", unlocked)
	}
}

func TestUpdateProgressClampsAndUnlocks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.State(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := svc.UpdateProgress(ctx, "alice", "center-1", core.AchTotalSyncs10, 25); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	totals, _ := achievementByType(snap, core.AchTotalSyncs10)
	if totals.Progress != 10 {
		t.Fatalf("progress = %d, want clamp to 10", totals.Progress)
	}
	if !totals.Unlocked {
		t.Fatal("crossing the target should unlock")
	}
	if snap.Stats.TotalXP != 150 {
		t.Fatalf("total xp = %d, want 150", snap.Stats.TotalXP)
	}
}

func TestUpdateProgressNoOps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Unknown achievement types are ignored.
	if err := svc.UpdateProgress(ctx, "alice", "center-1", "no_such_type", 5); err != nil {
		t.Fatalf("unknown type: %v", err)
	}

	if _, err := svc.State(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := svc.UpdateProgress(ctx, "alice", "center-1", core.AchTotalSyncs10, 10); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	before, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}

	// Writes against an unlocked achievement change nothing.
	if err := svc.UpdateProgress(ctx, "alice", "center-1", core.AchTotalSyncs10, 3); err != nil {
		t.Fatalf("post-unlock write: %v", err)
	}
	after, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	a1, _ := achievementByType(before, core.AchTotalSyncs10)
	a2, _ := achievementByType(after, core.AchTotalSyncs10)
	if a2.Progress != a1.Progress || !a2.Unlocked || after.Stats.TotalXP != before.Stats.TotalXP {
		t.Fatalf("unlocked achievement mutated: before %+v after %+v", a1, a2)
	}
}

func TestCentersAreIsolated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RecordSync(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	other, err := svc.State(ctx, "alice", "center-2")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if other.Stats.TotalSyncs != 0 || other.Stats.TotalXP != 0 {
		t.Fatalf("center-2 state leaked from center-1: %+v", other.Stats)
	}
}

// slowStore delays stats reads to widen the read-modify-write window the
// way a remote redis or sql round trip would.
type slowStore struct {
	engine.Storage
}

func (s slowStore) SelectStats(ctx context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Storage.SelectStats(ctx, customer, center)
}

func TestConcurrentRecordSyncSerializes(t *testing.T) {
	clk := &fakeClock{t: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)}
	svc := engine.NewLoyaltyService(slowStore{mem.New()}, engine.NewEventBus(engine.DispatchSync), engine.WithClock(clk.now))
	defer svc.Close()
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordSync(ctx, "alice", "center-1"); err != nil {
				t.Errorf("RecordSync: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if snap.Stats.TotalSyncs != n {
		t.Fatalf("total syncs = %d, want %d", snap.Stats.TotalSyncs, n)
	}
	// One first sync at 60 (10 sync + 50 first_sync), then 10 per repeat.
	want := int64(60 + (n-1)*10)
	if snap.Stats.TotalXP != want {
		t.Fatalf("total xp = %d, want %d", snap.Stats.TotalXP, want)
	}
	if snap.Stats.CurrentStreak != 1 {
		t.Fatalf("streak = %d, want 1", snap.Stats.CurrentStreak)
	}
}

func TestConcurrentUnlocksKeepAllXP(t *testing.T) {
	svc := engine.NewLoyaltyService(slowStore{mem.New()}, engine.NewEventBus(engine.DispatchSync))
	defer svc.Close()
	ctx := context.Background()

	if _, err := svc.State(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	var wg sync.WaitGroup
	for _, u := range []struct {
		typ    core.AchievementType
		target int
	}{
		{core.AchTotalSyncs10, 10},
		{core.AchTotalSyncs50, 50},
	} {
		wg.Add(1)
		go func(typ core.AchievementType, target int) {
			defer wg.Done()
			if err := svc.UpdateProgress(ctx, "alice", "center-1", typ, target); err != nil {
				t.Errorf("UpdateProgress %s: %v", typ, err)
			}
		}(u.typ, u.target)
	}
	wg.Wait()

	snap, err := svc.State(ctx, "alice", "center-1")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	for _, typ := range []core.AchievementType{core.AchTotalSyncs10, core.AchTotalSyncs50} {
		a, _ := achievementByType(snap, typ)
		if !a.Unlocked {
			t.Fatalf("%s should be unlocked", typ)
		}
	}
	if snap.Stats.TotalXP != 650 {
		t.Fatalf("total xp = %d, want 650", snap.Stats.TotalXP)
	}
}

func TestRecordSyncPublishesEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var types []core.EventType
	for _, typ := range []core.EventType{core.EventSyncRecorded, core.EventXPAwarded, core.EventAchievementUnlocked} {
		typ := typ
		svc.Subscribe(typ, func(_ context.Context, e core.Event) {
			types = append(types, e.Type)
		})
	}

	if _, err := svc.RecordSync(ctx, "alice", "center-1"); err != nil {
		t.Fatalf("RecordSync: %v", err)
	}

	seen := map[core.EventType]bool{}
	for _, typ := range types {
		seen[typ] = true
	}
	for _, want := range []core.EventType{core.EventSyncRecorded, core.EventXPAwarded, core.EventAchievementUnlocked} {
		if !seen[want] {
			t.Fatalf("missing event %s, got %v", want, types)
		}
	}
}

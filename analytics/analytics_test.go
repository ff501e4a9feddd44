package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"loyaltykit/core"
)

func eventAt(ev core.Event, ts time.Time) core.Event {
	ev.Time = ts
	return ev
}

func TestDACCountsUniqueSubjects(t *testing.T) {
	d := NewDAC()
	day := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	d.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-1", 1, 1), day))
	d.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-1", 1, 1), day.Add(time.Hour)))
	d.OnEvent(eventAt(core.NewSyncRecorded("bob", "center-1", 1, 1), day))
	d.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-2", 1, 1), day))

	if got := d.Count("2026-09-01"); got != 3 {
		t.Fatalf("expected 3 active subjects, got %d", got)
	}
	if got := d.Count("2026-09-02"); got != 0 {
		t.Fatalf("expected 0 for empty day, got %d", got)
	}
}

func TestLoyaltyMetricsTracksEvents(t *testing.T) {
	lm := NewLoyaltyMetrics()
	ts := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	lm.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-1", 1, 1), ts))
	lm.OnEvent(eventAt(core.NewXPAwarded("alice", "center-1", 10, 10), ts))
	lm.OnEvent(eventAt(core.NewXPAwarded("bob", "center-1", 14, 24), ts))
	lm.OnEvent(eventAt(core.NewAchievementUnlocked("alice", "center-1", core.AchFirstSync, 50), ts))
	lm.OnEvent(eventAt(core.NewLevelUp("alice", "center-1", 2, "Regular"), ts))

	day := "2026-09-01"
	if got := lm.GetSyncsByDay(day); got != 1 {
		t.Fatalf("syncs by day = %d, want 1", got)
	}
	if got := lm.GetXPAwardedByDay(day); got != 24 {
		t.Fatalf("xp by day = %d, want 24", got)
	}
	if got := lm.GetXPAwardedByCenter("center-1"); got != 24 {
		t.Fatalf("xp by center = %d, want 24", got)
	}
	if got := lm.GetUnlocksByType(core.AchFirstSync); got != 1 {
		t.Fatalf("unlocks by type = %d, want 1", got)
	}
	if got := lm.GetUniqueUnlockers(core.AchFirstSync); got != 1 {
		t.Fatalf("unique unlockers = %d, want 1", got)
	}
	if got := lm.GetDailyActiveCustomers(day); got != 2 {
		t.Fatalf("daily active = %d, want 2", got)
	}

	syncs, xp, unlocks := lm.GetRealtimeStats()
	if syncs != 1 || xp != 24 || unlocks != 1 {
		t.Fatalf("unexpected realtime stats: %d %d %d", syncs, xp, unlocks)
	}
}

func TestBridgeFansOut(t *testing.T) {
	lm := NewLoyaltyMetrics()
	d := NewDAC()
	b := NewBridge(lm, d)

	ts := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	b.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-1", 1, 1), ts))

	if lm.GetSyncsByDay("2026-09-01") != 1 {
		t.Fatal("metrics hook missed event")
	}
	if d.Count("2026-09-01") != 1 {
		t.Fatal("dac hook missed event")
	}
}

func TestAggregationEngineDaily(t *testing.T) {
	lm := NewLoyaltyMetrics()
	ae := NewAggregationEngine(lm, time.Hour)

	now := time.Now().UTC()
	ae.OnEvent(eventAt(core.NewSyncRecorded("alice", "center-1", 1, 1), now))
	ae.OnEvent(eventAt(core.NewXPAwarded("alice", "center-1", 60, 60), now))

	if err := ae.AggregateNow(); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	today := now.Format("2006-01-02")
	data, ok := ae.GetAggregatedData(PeriodDaily, today)
	if !ok {
		t.Fatal("expected daily aggregation for today")
	}
	if data.SyncsRecorded != 1 || data.XPAwarded != 60 || data.ActiveCustomers != 1 {
		t.Fatalf("unexpected aggregation: %+v", data)
	}

	weekly := ae.GetAllAggregatedData(PeriodWeekly)
	if len(weekly) != 1 || weekly[0].SyncsRecorded != 1 {
		t.Fatalf("unexpected weekly aggregation: %+v", weekly)
	}
}

type captureExporter struct {
	mu   sync.Mutex
	seen []*AggregatedData
}

func (c *captureExporter) Export(_ context.Context, data *AggregatedData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, data)
	return nil
}
func (c *captureExporter) Flush(context.Context) error { return nil }
func (c *captureExporter) Close() error                { return nil }

func TestExportManagerDistributes(t *testing.T) {
	a := &captureExporter{}
	b := &captureExporter{}
	em := NewExportManager(a, b)

	data := []*AggregatedData{
		{Period: PeriodDaily, Key: "2026-09-01", SyncsRecorded: 3},
		{Period: PeriodDaily, Key: "2026-09-02", SyncsRecorded: 5},
	}
	if err := em.ExportData(context.Background(), data); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(a.seen) != 2 || len(b.seen) != 2 {
		t.Fatalf("expected both exporters to see 2 records, got %d and %d", len(a.seen), len(b.seen))
	}
}

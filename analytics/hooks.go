package analytics

import (
	"fmt"
	"sync"
	"time"

	"loyaltykit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DAC tracks daily active customers per calendar day.
type DAC struct {
	mu   sync.Mutex
	days map[string]map[string]struct{}
}

func NewDAC() *DAC { return &DAC{days: map[string]map[string]struct{}{}} }

func (d *DAC) OnEvent(e core.Event) {
	day := e.Time.UTC().Format("2006-01-02")
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.days[day]
	if m == nil {
		m = map[string]struct{}{}
		d.days[day] = m
	}
	m[core.SubjectKey(e.CustomerID, e.CenterID)] = struct{}{}
}

func (d *DAC) Count(day string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.days[day])
}

// LoyaltyMetrics tracks engagement KPIs across the sync and achievement flow.
type LoyaltyMetrics struct {
	mu sync.RWMutex

	// Customer engagement
	dailyActive   map[string]map[string]struct{}
	weeklyActive  map[string]map[string]struct{}
	monthlyActive map[string]map[string]struct{}

	// Sync metrics
	syncsByDay    map[string]int64
	syncsByCenter map[core.CenterID]int64

	// XP metrics
	xpAwardedByDay    map[string]int64
	xpAwardedByCenter map[core.CenterID]int64

	// Achievement metrics
	unlocksByDay    map[string]int64
	unlocksByType   map[core.AchievementType]int64
	uniqueUnlockers map[core.AchievementType]map[string]struct{}

	// Level metrics
	levelsReachedByDay map[string]int64
	levelDistribution  map[int]int // level -> times reached

	// Real-time counters (last 24 hours)
	realtimeCounters struct {
		syncsRecorded int64
		xpAwarded     int64
		unlocks       int64
		lastReset     time.Time
	}
}

func NewLoyaltyMetrics() *LoyaltyMetrics {
	now := time.Now()
	lm := &LoyaltyMetrics{
		dailyActive:        make(map[string]map[string]struct{}),
		weeklyActive:       make(map[string]map[string]struct{}),
		monthlyActive:      make(map[string]map[string]struct{}),
		syncsByDay:         make(map[string]int64),
		syncsByCenter:      make(map[core.CenterID]int64),
		xpAwardedByDay:     make(map[string]int64),
		xpAwardedByCenter:  make(map[core.CenterID]int64),
		unlocksByDay:       make(map[string]int64),
		unlocksByType:      make(map[core.AchievementType]int64),
		uniqueUnlockers:    make(map[core.AchievementType]map[string]struct{}),
		levelsReachedByDay: make(map[string]int64),
		levelDistribution:  make(map[int]int),
	}
	lm.realtimeCounters.lastReset = now
	return lm
}

func (lm *LoyaltyMetrics) OnEvent(e core.Event) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	week := getWeekKey(e.Time)
	month := getMonthKey(e.Time)
	subject := core.SubjectKey(e.CustomerID, e.CenterID)

	lm.trackEngagement(subject, day, week, month)

	switch e.Type {
	case core.EventSyncRecorded:
		lm.syncsByDay[day]++
		lm.syncsByCenter[e.CenterID]++
		lm.realtimeCounters.syncsRecorded++
	case core.EventXPAwarded:
		if e.Delta > 0 {
			lm.xpAwardedByDay[day] += e.Delta
			lm.xpAwardedByCenter[e.CenterID] += e.Delta
			lm.realtimeCounters.xpAwarded += e.Delta
		}
	case core.EventAchievementUnlocked:
		lm.unlocksByDay[day]++
		lm.unlocksByType[e.Achievement]++
		if lm.uniqueUnlockers[e.Achievement] == nil {
			lm.uniqueUnlockers[e.Achievement] = make(map[string]struct{})
		}
		lm.uniqueUnlockers[e.Achievement][subject] = struct{}{}
		lm.realtimeCounters.unlocks++
	case core.EventLevelUp:
		lm.levelsReachedByDay[day]++
		lm.levelDistribution[e.Level]++
	}

	// Reset realtime counters if needed (every 24 hours)
	if time.Since(lm.realtimeCounters.lastReset) > 24*time.Hour {
		lm.realtimeCounters.syncsRecorded = 0
		lm.realtimeCounters.xpAwarded = 0
		lm.realtimeCounters.unlocks = 0
		lm.realtimeCounters.lastReset = time.Now()
	}
}

func (lm *LoyaltyMetrics) trackEngagement(subject, day, week, month string) {
	if lm.dailyActive[day] == nil {
		lm.dailyActive[day] = make(map[string]struct{})
	}
	lm.dailyActive[day][subject] = struct{}{}

	if lm.weeklyActive[week] == nil {
		lm.weeklyActive[week] = make(map[string]struct{})
	}
	lm.weeklyActive[week][subject] = struct{}{}

	if lm.monthlyActive[month] == nil {
		lm.monthlyActive[month] = make(map[string]struct{})
	}
	lm.monthlyActive[month][subject] = struct{}{}
}

// GetDailyActiveCustomers returns the count of active customers for a day
func (lm *LoyaltyMetrics) GetDailyActiveCustomers(day string) int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.dailyActive[day])
}

// GetWeeklyActiveCustomers returns the count of active customers for an ISO week
func (lm *LoyaltyMetrics) GetWeeklyActiveCustomers(week string) int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.weeklyActive[week])
}

// GetMonthlyActiveCustomers returns the count of active customers for a month
func (lm *LoyaltyMetrics) GetMonthlyActiveCustomers(month string) int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.monthlyActive[month])
}

// GetSyncsByDay returns total syncs recorded on a specific day
func (lm *LoyaltyMetrics) GetSyncsByDay(day string) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.syncsByDay[day]
}

// GetSyncsByCenter returns total syncs recorded for a center
func (lm *LoyaltyMetrics) GetSyncsByCenter(center core.CenterID) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.syncsByCenter[center]
}

// GetXPAwardedByDay returns total XP awarded on a specific day
func (lm *LoyaltyMetrics) GetXPAwardedByDay(day string) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.xpAwardedByDay[day]
}

// GetXPAwardedByCenter returns total XP awarded within a center
func (lm *LoyaltyMetrics) GetXPAwardedByCenter(center core.CenterID) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.xpAwardedByCenter[center]
}

// GetUnlocksByDay returns total achievement unlocks on a specific day
func (lm *LoyaltyMetrics) GetUnlocksByDay(day string) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.unlocksByDay[day]
}

// GetUnlocksByType returns total unlocks of one achievement type
func (lm *LoyaltyMetrics) GetUnlocksByType(t core.AchievementType) int64 {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.unlocksByType[t]
}

// GetUniqueUnlockers returns the count of distinct customers holding an achievement
func (lm *LoyaltyMetrics) GetUniqueUnlockers(t core.AchievementType) int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.uniqueUnlockers[t])
}

// GetRealtimeStats returns real-time statistics for the last 24 hours
func (lm *LoyaltyMetrics) GetRealtimeStats() (syncs int64, xp int64, unlocks int64) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.realtimeCounters.syncsRecorded,
		lm.realtimeCounters.xpAwarded,
		lm.realtimeCounters.unlocks
}

// GetTopCenters returns centers ranked by XP awarded
func (lm *LoyaltyMetrics) GetTopCenters(limit int) map[string]interface{} {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	result := make(map[string]interface{})

	top := make([]struct {
		center core.CenterID
		xp     int64
	}, 0, len(lm.xpAwardedByCenter))

	for center, xp := range lm.xpAwardedByCenter {
		top = append(top, struct {
			center core.CenterID
			xp     int64
		}{center, xp})
	}

	// Sort by XP (simple selection sort for small datasets)
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[i].xp < top[j].xp {
				top[i], top[j] = top[j], top[i]
			}
		}
	}

	if len(top) > limit {
		top = top[:limit]
	}

	topData := make([]map[string]interface{}, len(top))
	for i, tc := range top {
		topData[i] = map[string]interface{}{
			"center": tc.center,
			"xp":     tc.xp,
		}
	}

	result["top_centers_by_xp"] = topData
	result["total_xp_awarded"] = sumCenterValues(lm.xpAwardedByCenter)
	result["total_unlocks"] = sumTypeValues(lm.unlocksByType)

	return result
}

// Helper functions
func getWeekKey(t time.Time) string {
	tt := t.UTC()
	year, week := tt.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func getMonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func sumCenterValues(m map[core.CenterID]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func sumTypeValues(m map[core.AchievementType]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

package core

// Shipped achievement types. Persisted instance rows reference these keys,
// so they must never be renamed.
const (
	AchFirstSync    AchievementType = "first_sync"
	AchSyncStreak3  AchievementType = "sync_streak_3"
	AchSyncStreak7  AchievementType = "sync_streak_7"
	AchSyncStreak30 AchievementType = "sync_streak_30"
	AchTotalSyncs10 AchievementType = "total_syncs_10"
	AchTotalSyncs50 AchievementType = "total_syncs_50"
)

// XP accounting for sync events.
const (
	BaseSyncXP        int64 = 10
	StreakBonusPerDay int64 = 2
	StreakBonusCap    int64 = 20
)

// Definition is a static, code-embedded achievement definition.
type Definition struct {
	Type        AchievementType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Target      int             `json:"target"`
	XPReward    int64           `json:"xp_reward"`
}

// Catalog is the full shipped achievement catalog. One instance row per
// definition is created lazily the first time a customer's state is loaded.
var Catalog = []Definition{
	{Type: AchFirstSync, Name: "First Check-In", Description: "Record your first device health sync", Icon: "sparkles", Target: 1, XPReward: 50},
	{Type: AchSyncStreak3, Name: "Warming Up", Description: "Sync 3 days in a row", Icon: "flame", Target: 3, XPReward: 100},
	{Type: AchSyncStreak7, Name: "Weekly Habit", Description: "Sync 7 days in a row", Icon: "calendar", Target: 7, XPReward: 250},
	{Type: AchSyncStreak30, Name: "Iron Routine", Description: "Sync 30 days in a row", Icon: "trophy", Target: 30, XPReward: 1000},
	{Type: AchTotalSyncs10, Name: "Regular", Description: "Record 10 syncs in total", Icon: "repeat", Target: 10, XPReward: 150},
	{Type: AchTotalSyncs50, Name: "Devoted", Description: "Record 50 syncs in total", Icon: "medal", Target: 50, XPReward: 500},
}

// DefinitionByType returns the catalog entry for the given type.
func DefinitionByType(t AchievementType) (Definition, bool) {
	for _, d := range Catalog {
		if d.Type == t {
			return d, true
		}
	}
	return Definition{}, false
}

// SyncXP returns the XP granted for one sync at the given post-transition
// streak: a flat base plus a capped per-day bonus once a streak is running.
func SyncXP(streak int) int64 {
	xp := BaseSyncXP
	if streak > 1 {
		bonus := int64(streak) * StreakBonusPerDay
		if bonus > StreakBonusCap {
			bonus = StreakBonusCap
		}
		xp += bonus
	}
	return xp
}

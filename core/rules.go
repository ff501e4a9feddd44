package core

// ProgressUpdate is a milestone rule's verdict: push this achievement's
// progress to the given value. The progress updater clamps and decides
// whether an unlock results.
type ProgressUpdate struct {
	Type     AchievementType
	Progress int
}

// MilestoneRule inspects post-sync stats and reports achievement progress.
type MilestoneRule interface {
	Evaluate(stats Stats) []ProgressUpdate
}

// FirstSyncRule fires exactly once, on the first recorded sync.
type FirstSyncRule struct{}

func (FirstSyncRule) Evaluate(stats Stats) []ProgressUpdate {
	if stats.TotalSyncs != 1 {
		return nil
	}
	return []ProgressUpdate{{Type: AchFirstSync, Progress: 1}}
}

// StreakRule fires when the current streak meets or exceeds its milestone.
// Shorter streaks report nothing: partial streak progress is not tracked.
type StreakRule struct {
	Milestone int
	Type      AchievementType
}

func (r StreakRule) Evaluate(stats Stats) []ProgressUpdate {
	if stats.CurrentStreak < r.Milestone {
		return nil
	}
	return []ProgressUpdate{{Type: r.Type, Progress: stats.CurrentStreak}}
}

// TotalSyncsRule always reports the running sync total, so lifetime
// milestones accumulate visible progress before they unlock.
type TotalSyncsRule struct {
	Type AchievementType
}

func (r TotalSyncsRule) Evaluate(stats Stats) []ProgressUpdate {
	return []ProgressUpdate{{Type: r.Type, Progress: int(stats.TotalSyncs)}}
}

// DefaultMilestoneRules returns the shipped rules in their fixed evaluation
// order: first-sync, then streak milestones, then lifetime totals.
func DefaultMilestoneRules() []MilestoneRule {
	return []MilestoneRule{
		FirstSyncRule{},
		StreakRule{Milestone: 3, Type: AchSyncStreak3},
		StreakRule{Milestone: 7, Type: AchSyncStreak7},
		StreakRule{Milestone: 30, Type: AchSyncStreak30},
		TotalSyncsRule{Type: AchTotalSyncs10},
		TotalSyncsRule{Type: AchTotalSyncs50},
	}
}

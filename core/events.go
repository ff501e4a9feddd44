package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventSyncRecorded        EventType = "sync_recorded"
	EventXPAwarded           EventType = "xp_awarded"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventLevelUp             EventType = "level_up"
)

// Event represents an immutable domain event.
type Event struct {
	Type        EventType       `json:"type"`
	Time        time.Time       `json:"time"`
	CustomerID  CustomerID      `json:"customer_id"`
	CenterID    CenterID        `json:"center_id"`
	Achievement AchievementType `json:"achievement,omitempty"`
	Delta       int64           `json:"delta,omitempty"`
	TotalXP     int64           `json:"total_xp,omitempty"`
	Streak      int             `json:"streak,omitempty"`
	TotalSyncs  int64           `json:"total_syncs,omitempty"`
	Level       int             `json:"level,omitempty"`
	LevelName   string          `json:"level_name,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

func NewSyncRecorded(customer CustomerID, center CenterID, streak int, totalSyncs int64) Event {
	return Event{Type: EventSyncRecorded, Time: time.Now().UTC(), CustomerID: customer, CenterID: center, Streak: streak, TotalSyncs: totalSyncs}
}

func NewXPAwarded(customer CustomerID, center CenterID, delta int64, total int64) Event {
	return Event{Type: EventXPAwarded, Time: time.Now().UTC(), CustomerID: customer, CenterID: center, Delta: delta, TotalXP: total}
}

func NewAchievementUnlocked(customer CustomerID, center CenterID, achievement AchievementType, xpReward int64) Event {
	return Event{Type: EventAchievementUnlocked, Time: time.Now().UTC(), CustomerID: customer, CenterID: center, Achievement: achievement, Delta: xpReward}
}

func NewLevelUp(customer CustomerID, center CenterID, level int, name string) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), CustomerID: customer, CenterID: center, Level: level, LevelName: name}
}

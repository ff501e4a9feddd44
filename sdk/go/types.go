package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AchievementState mirrors the public JSON surface of one achievement instance.
type AchievementState struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	CenterID   string     `json:"center_id"`
	Type       string     `json:"achievement_type"`
	Progress   int        `json:"progress"`
	Unlocked   bool       `json:"is_unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Stats mirrors the public JSON surface of a customer's stats row.
type Stats struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customer_id"`
	CenterID      string     `json:"center_id"`
	TotalXP       int64      `json:"total_xp"`
	Level         int        `json:"level"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastSyncDate  *time.Time `json:"last_sync_date,omitempty"`
	TotalSyncs    int64      `json:"total_syncs"`
}

// LevelInfo mirrors the computed level payload.
type LevelInfo struct {
	Level           int    `json:"level"`
	Name            string `json:"name"`
	XPInLevel       int64  `json:"xp_in_level"`
	XPToNext        int64  `json:"xp_to_next"`
	ProgressPercent int    `json:"progress_percent"`
	NextLevelName   string `json:"next_level_name,omitempty"`
}

// Snapshot is the full loyalty state returned for one customer.
type Snapshot struct {
	Achievements []AchievementState `json:"achievements"`
	Stats        Stats              `json:"stats"`
	Level        LevelInfo          `json:"level"`
}

// SyncResult reports the outcome of one recorded sync.
type SyncResult struct {
	Stats     Stats     `json:"stats"`
	XPAwarded int64     `json:"xp_awarded"`
	Level     LevelInfo `json:"level"`
}

// LeaderboardEntry is one ranked customer.
type LeaderboardEntry struct {
	CustomerID string `json:"customer_id"`
	CenterID   string `json:"center_id"`
	XP         int64  `json:"xp"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyCustomerID is returned when the customer id is empty.
var ErrEmptyCustomerID = errors.New("customer id is required")

// ErrEmptyCenterID is returned when the center id is empty.
var ErrEmptyCenterID = errors.New("center id is required")

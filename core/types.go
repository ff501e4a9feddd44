package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// CustomerID uniquely identifies a customer in the loyalty domain.
type CustomerID string

// CenterID identifies the service center (tenant) a customer belongs to.
// All achievement and stats rows are scoped to one (customer, center) pair.
type CenterID string

// AchievementType is the symbolic key of an achievement definition.
// Values are globally unique and immutable once shipped: persisted
// instance rows reference them.
type AchievementType string

// AchievementState is one customer's progress against a single definition.
// Instances are created lazily (one per catalog definition) and mutated in
// place; they are never deleted. Unlocked is monotonic.
type AchievementState struct {
	ID         string          `json:"id"`
	CustomerID CustomerID      `json:"customer_id"`
	CenterID   CenterID        `json:"center_id"`
	Type       AchievementType `json:"achievement_type"`
	Progress   int             `json:"progress"`
	Unlocked   bool            `json:"is_unlocked"`
	UnlockedAt *time.Time      `json:"unlocked_at,omitempty"`
}

// Stats is the per-(customer, center) gamification counter row.
// TotalXP and LongestStreak never decrease; LastSyncDate is date-only.
type Stats struct {
	ID            string     `json:"id"`
	CustomerID    CustomerID `json:"customer_id"`
	CenterID      CenterID   `json:"center_id"`
	TotalXP       int64      `json:"total_xp"`
	Level         int        `json:"level"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastSyncDate  *time.Time `json:"last_sync_date,omitempty"`
	TotalSyncs    int64      `json:"total_syncs"`
}

// Clone returns a copy of the stats row so callers cannot mutate stored state.
func (s Stats) Clone() Stats {
	cp := s
	if s.LastSyncDate != nil {
		d := *s.LastSyncDate
		cp.LastSyncDate = &d
	}
	return cp
}

// SubjectKey joins a customer and center into a single map/leaderboard key.
func SubjectKey(customer CustomerID, center CenterID) string {
	return string(customer) + "@" + string(center)
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeCustomerID trims and lowercases customer identifiers.
func NormalizeCustomerID(id CustomerID) (CustomerID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty customer id")
	}
	return CustomerID(strings.ToLower(s)), nil
}

// ValidateCenterID ensures a non-empty center id with simple charset check.
func ValidateCenterID(c CenterID) error {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return errors.New("empty center id")
	}
	// simple check: alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid center id")
	}
	return nil
}

// DateOnly truncates t to its UTC calendar date (midnight UTC).
// The engine's notion of "day" is UTC; streak comparisons operate on
// these truncated values only.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayDiff returns the number of calendar days from b to a.
// Both arguments are truncated first, so intra-day time differences
// never influence the result. Negative means a precedes b.
func DayDiff(a, b time.Time) int {
	da := DateOnly(a)
	db := DateOnly(b)
	return int(da.Sub(db).Hours() / 24)
}

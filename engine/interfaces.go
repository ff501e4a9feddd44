package engine

import (
	"context"
	"errors"
	"time"

	"loyaltykit/core"
)

// ErrDuplicate is returned by storage adapters when an insert collides with
// an existing row for the same (customer, center) scope. The service treats
// it as the benign "someone else just initialized it" signal.
var ErrDuplicate = errors.New("row already exists")

// ErrNotFound is returned by update operations when the target row is gone.
var ErrNotFound = errors.New("row not found")

// AchievementPatch carries the mutable fields of an achievement instance.
type AchievementPatch struct {
	Progress   int
	Unlocked   bool
	UnlockedAt *time.Time
}

// StatsPatch carries a partial stats update; nil fields are left unchanged.
type StatsPatch struct {
	TotalXP       *int64
	Level         *int
	CurrentStreak *int
	LongestStreak *int
	LastSyncDate  *time.Time
	TotalSyncs    *int64
}

// Storage abstracts persistence for achievement and stats rows.
type Storage interface {
	SelectAchievements(ctx context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error)
	// InsertAchievements bulk-inserts the full catalog of instances; used
	// only during lazy initialization. Returns ErrDuplicate when any of the
	// rows already exists.
	InsertAchievements(ctx context.Context, instances []core.AchievementState) error
	UpdateAchievement(ctx context.Context, id string, patch AchievementPatch) error
	// SelectStats returns nil without error when no stats row exists yet.
	SelectStats(ctx context.Context, customer core.CustomerID, center core.CenterID) (*core.Stats, error)
	InsertStats(ctx context.Context, stats core.Stats) (core.Stats, error)
	UpdateStats(ctx context.Context, id string, patch StatsPatch) error
}

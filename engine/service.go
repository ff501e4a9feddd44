package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"loyaltykit/core"
)

// LoyaltyService wires storage, event bus, and milestone rules into the
// customer-facing streak/XP API.
type LoyaltyService struct {
	storage Storage
	bus     *EventBus
	rules   []core.MilestoneRule
	logger  *slog.Logger
	now     func() time.Time

	// Per-subject single-writer locks. Two concurrent writers for the same
	// (customer, center) would otherwise both read the same stale stats row
	// and the second write would silently discard the first. The map keeps
	// one entry per subject ever seen; at very large customer cardinality
	// this needs an LRU or ref-counted release.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// Option configures a LoyaltyService.
type Option func(*LoyaltyService)

// WithClock overrides the service clock; RecordSync derives "today" from it.
func WithClock(now func() time.Time) Option {
	return func(s *LoyaltyService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *LoyaltyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMilestoneRules replaces the shipped milestone rule set.
func WithMilestoneRules(rules []core.MilestoneRule) Option {
	return func(s *LoyaltyService) { s.rules = rules }
}

func NewLoyaltyService(storage Storage, bus *EventBus, opts ...Option) *LoyaltyService {
	if storage == nil || bus == nil {
		panic("NewLoyaltyService requires non-nil storage and bus")
	}
	s := &LoyaltyService{
		storage: storage,
		bus:     bus,
		rules:   core.DefaultMilestoneRules(),
		logger:  slog.Default(),
		now:     time.Now,
		locks:   map[string]*sync.Mutex{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe convenience method.
func (s *LoyaltyService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *LoyaltyService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

func (s *LoyaltyService) Close() { s.bus.Close() }

// Ping probes storage with a read-only stats lookup. A missing row is
// healthy; only adapter or transport failures surface.
func (s *LoyaltyService) Ping(ctx context.Context) error {
	_, err := s.storage.SelectStats(ctx, "healthcheck_probe", "healthcheck")
	return err
}

// Snapshot is the full gamification state of one (customer, center) pair.
type Snapshot struct {
	Achievements []core.AchievementState `json:"achievements"`
	Stats        core.Stats              `json:"stats"`
	Level        core.LevelInfo          `json:"level"`
}

// SyncResult reports the outcome of one recorded sync event.
type SyncResult struct {
	Stats     core.Stats     `json:"stats"`
	XPAwarded int64          `json:"xp_awarded"`
	Level     core.LevelInfo `json:"level"`
}

func (s *LoyaltyService) lock(key string) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.lockMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// State loads the achievement instances and stats row for a customer,
// creating both lazily on first access. Initialization is idempotent: a
// concurrent caller that loses the insert race re-reads the existing rows.
func (s *LoyaltyService) State(ctx context.Context, customer core.CustomerID, center core.CenterID) (Snapshot, error) {
	customer, err := s.validate(customer, center)
	if err != nil {
		return Snapshot{}, err
	}
	achievements, err := s.ensureAchievements(ctx, customer, center)
	if err != nil {
		return Snapshot{}, err
	}
	stats, err := s.ensureStats(ctx, customer, center)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Achievements: achievements,
		Stats:        stats,
		Level:        core.LevelForXP(stats.TotalXP),
	}, nil
}

// UpdateProgress pushes an achievement's progress toward its target.
// It is a no-op when the instance is missing or already unlocked. Progress
// is clamped to the target; crossing the target unlocks the achievement,
// credits its XP reward, and recomputes the cached level. Callers are
// expected to pass monotonically increasing progress; regressions are a
// caller contract violation and are written as-is.
func (s *LoyaltyService) UpdateProgress(ctx context.Context, customer core.CustomerID, center core.CenterID, typ core.AchievementType, progress int) error {
	customer, err := s.validate(customer, center)
	if err != nil {
		return err
	}
	unlock := s.lock(core.SubjectKey(customer, center))
	defer unlock()
	return s.updateProgressLocked(ctx, customer, center, typ, progress)
}

// updateProgressLocked is UpdateProgress without the subject lock. The
// mutex is not reentrant, so RecordSync's milestone fan-out, which already
// holds it, calls this directly.
func (s *LoyaltyService) updateProgressLocked(ctx context.Context, customer core.CustomerID, center core.CenterID, typ core.AchievementType, progress int) error {
	def, ok := core.DefinitionByType(typ)
	if !ok {
		return nil
	}
	achievements, err := s.storage.SelectAchievements(ctx, customer, center)
	if err != nil {
		return fmt.Errorf("load achievements: %w", err)
	}
	var inst *core.AchievementState
	for i := range achievements {
		if achievements[i].Type == typ {
			inst = &achievements[i]
			break
		}
	}
	if inst == nil || inst.Unlocked {
		return nil
	}

	clamped := progress
	if clamped > def.Target {
		clamped = def.Target
	}
	if clamped < def.Target {
		patch := AchievementPatch{Progress: clamped}
		if err := s.storage.UpdateAchievement(ctx, inst.ID, patch); err != nil {
			return fmt.Errorf("update achievement %s: %w", typ, err)
		}
		return nil
	}

	unlockedAt := s.now().UTC()
	patch := AchievementPatch{Progress: clamped, Unlocked: true, UnlockedAt: &unlockedAt}
	if err := s.storage.UpdateAchievement(ctx, inst.ID, patch); err != nil {
		return fmt.Errorf("unlock achievement %s: %w", typ, err)
	}
	s.bus.Publish(ctx, core.NewAchievementUnlocked(customer, center, typ, def.XPReward))

	stats, err := s.ensureStats(ctx, customer, center)
	if err != nil {
		return err
	}
	newXP, err := core.AddSafe(stats.TotalXP, def.XPReward)
	if err != nil {
		return fmt.Errorf("credit xp for %s: %w", typ, err)
	}
	info := core.LevelForXP(newXP)
	statsPatch := StatsPatch{TotalXP: &newXP, Level: &info.Level}
	if err := s.storage.UpdateStats(ctx, stats.ID, statsPatch); err != nil {
		return fmt.Errorf("persist xp for %s: %w", typ, err)
	}
	s.bus.Publish(ctx, core.NewXPAwarded(customer, center, def.XPReward, newXP))
	if info.Level > stats.Level {
		s.bus.Publish(ctx, core.NewLevelUp(customer, center, info.Level, info.Name))
	}
	return nil
}

// RecordSync records one device health sync event and advances the streak
// state machine. The transition and its side effects are applied under a
// per-subject lock so concurrent syncs for the same customer serialize
// instead of overwriting each other.
//
// Streak transitions, keyed on the day distance between the event date and
// the stored last sync date: no prior record starts the streak at 1, a
// same-day repeat leaves it unchanged, the next day increments it, and a
// gap of two or more days resets it to 1. A backward-dated sync (clock
// skew, replayed event) still counts as a sync and earns XP, but cannot
// move the streak or the recorded last sync date.
func (s *LoyaltyService) RecordSync(ctx context.Context, customer core.CustomerID, center core.CenterID) (SyncResult, error) {
	customer, err := s.validate(customer, center)
	if err != nil {
		return SyncResult{}, err
	}
	unlock := s.lock(core.SubjectKey(customer, center))
	defer unlock()

	// Milestone updates below need the instances present.
	if _, err := s.ensureAchievements(ctx, customer, center); err != nil {
		return SyncResult{}, err
	}
	stats, err := s.ensureStats(ctx, customer, center)
	if err != nil {
		return SyncResult{}, err
	}

	today := core.DateOnly(s.now())
	newStreak := stats.CurrentStreak
	advanceDate := true
	if stats.LastSyncDate == nil {
		newStreak = 1
	} else {
		switch diff := core.DayDiff(today, *stats.LastSyncDate); {
		case diff == 0:
			// repeat sync, same day: streak unchanged
		case diff == 1:
			newStreak++
		case diff > 1:
			newStreak = 1
		default:
			advanceDate = false
		}
	}

	longest := stats.LongestStreak
	if newStreak > longest {
		longest = newStreak
	}
	totalSyncs := stats.TotalSyncs + 1
	xpDelta := core.SyncXP(newStreak)
	newXP, err := core.AddSafe(stats.TotalXP, xpDelta)
	if err != nil {
		return SyncResult{}, fmt.Errorf("credit sync xp: %w", err)
	}
	info := core.LevelForXP(newXP)

	patch := StatsPatch{
		TotalXP:       &newXP,
		Level:         &info.Level,
		CurrentStreak: &newStreak,
		LongestStreak: &longest,
		TotalSyncs:    &totalSyncs,
	}
	if advanceDate {
		patch.LastSyncDate = &today
	}
	if err := s.storage.UpdateStats(ctx, stats.ID, patch); err != nil {
		return SyncResult{}, fmt.Errorf("persist sync: %w", err)
	}

	updated := stats
	updated.TotalXP = newXP
	updated.Level = info.Level
	updated.CurrentStreak = newStreak
	updated.LongestStreak = longest
	updated.TotalSyncs = totalSyncs
	if advanceDate {
		updated.LastSyncDate = &today
	}

	s.bus.Publish(ctx, core.NewSyncRecorded(customer, center, newStreak, totalSyncs))
	s.bus.Publish(ctx, core.NewXPAwarded(customer, center, xpDelta, newXP))
	if info.Level > stats.Level {
		s.bus.Publish(ctx, core.NewLevelUp(customer, center, info.Level, info.Name))
	}

	// Milestone fan-out is best-effort: one failed update is logged and
	// must not block the remaining rules.
	for _, rule := range s.rules {
		for _, u := range rule.Evaluate(updated) {
			if err := s.updateProgressLocked(ctx, customer, center, u.Type, u.Progress); err != nil {
				s.logger.Warn("milestone update failed",
					"customer", customer,
					"center", center,
					"achievement", u.Type,
					"error", err)
			}
		}
	}

	// Re-read so XP credited by unlocks in the fan-out shows up in the result.
	final, err := s.ensureStats(ctx, customer, center)
	if err != nil {
		return SyncResult{Stats: updated, XPAwarded: xpDelta, Level: info}, nil
	}
	return SyncResult{Stats: final, XPAwarded: xpDelta, Level: core.LevelForXP(final.TotalXP)}, nil
}

func (s *LoyaltyService) validate(customer core.CustomerID, center core.CenterID) (core.CustomerID, error) {
	normalized, err := core.NormalizeCustomerID(customer)
	if err != nil {
		return "", err
	}
	if err := core.ValidateCenterID(center); err != nil {
		return "", err
	}
	return normalized, nil
}

func (s *LoyaltyService) ensureAchievements(ctx context.Context, customer core.CustomerID, center core.CenterID) ([]core.AchievementState, error) {
	achievements, err := s.storage.SelectAchievements(ctx, customer, center)
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	if len(achievements) > 0 {
		return achievements, nil
	}

	instances := make([]core.AchievementState, 0, len(core.Catalog))
	for _, def := range core.Catalog {
		instances = append(instances, core.AchievementState{
			ID:         uuid.NewString(),
			CustomerID: customer,
			CenterID:   center,
			Type:       def.Type,
		})
	}
	switch err := s.storage.InsertAchievements(ctx, instances); {
	case err == nil:
	case isDuplicate(err):
		// Lost the init race to a concurrent caller; their rows win.
		s.logger.Debug("achievement catalog already initialized",
			"customer", customer, "center", center)
	default:
		return nil, fmt.Errorf("initialize achievements: %w", err)
	}

	achievements, err = s.storage.SelectAchievements(ctx, customer, center)
	if err != nil {
		return nil, fmt.Errorf("reload achievements: %w", err)
	}
	return achievements, nil
}

func (s *LoyaltyService) ensureStats(ctx context.Context, customer core.CustomerID, center core.CenterID) (core.Stats, error) {
	stats, err := s.storage.SelectStats(ctx, customer, center)
	if err != nil {
		return core.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	if stats != nil {
		return *stats, nil
	}

	initial := core.Stats{
		ID:         uuid.NewString(),
		CustomerID: customer,
		CenterID:   center,
		Level:      1,
	}
	created, err := s.storage.InsertStats(ctx, initial)
	if err != nil {
		if !isDuplicate(err) {
			return core.Stats{}, fmt.Errorf("initialize stats: %w", err)
		}
		stats, err = s.storage.SelectStats(ctx, customer, center)
		if err != nil || stats == nil {
			return core.Stats{}, fmt.Errorf("reload stats: %w", err)
		}
		return *stats, nil
	}
	return created, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

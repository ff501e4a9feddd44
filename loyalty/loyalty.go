// Package loyalty is the convenience facade for embedding the loyalty
// engine in a host application with a single constructor call.
package loyalty

import (
	"context"
	"time"

	mem "loyaltykit/adapters/memory"
	"loyaltykit/core"
	"loyaltykit/engine"
	"loyaltykit/realtime"
)

// Option configures the loyalty service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	mode    engine.DispatchMode
	rules   []core.MilestoneRule
	hub     *realtime.Hub
	now     func() time.Time
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithMilestoneRules overrides the milestone rule set evaluated after each sync.
func WithMilestoneRules(rules []core.MilestoneRule) Option {
	return func(c *config) { c.rules = rules }
}

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithClock overrides the engine clock. Useful for tests and backfills.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// New builds a configured LoyaltyService. If not provided, defaults are used:
//   - storage: in-memory
//   - rules: DefaultMilestoneRules
//   - dispatch: async
func New(opts ...Option) *engine.LoyaltyService {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	bus := engine.NewEventBus(cfg.mode)

	var svcOpts []engine.Option
	if cfg.rules != nil {
		svcOpts = append(svcOpts, engine.WithMilestoneRules(cfg.rules))
	}
	if cfg.now != nil {
		svcOpts = append(svcOpts, engine.WithClock(cfg.now))
	}
	svc := engine.NewLoyaltyService(cfg.storage, bus, svcOpts...)

	if cfg.hub != nil {
		// Bridge all primary events to realtime
		bus.Subscribe(core.EventSyncRecorded, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventAchievementUnlocked, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
	}
	return svc
}

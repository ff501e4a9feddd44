package engine

import (
	"context"
	"sync"
	"time"

	"loyaltykit/core"
)

// DispatchMode selects how Publish delivers events to handlers.
type DispatchMode int

const (
	// DispatchSync runs handlers inline on the publishing goroutine.
	DispatchSync DispatchMode = iota
	// DispatchAsync queues events to a worker pool; full queues drop.
	DispatchAsync
)

const (
	asyncQueueSize = 2048
	asyncWorkers   = 4
)

// EventBus is a typed pub/sub fan-out for domain events. Handlers are keyed
// by event type; a handler registered for xp_awarded never sees sync_recorded.
type EventBus struct {
	mode   DispatchMode
	mu     sync.RWMutex
	nextID int64
	byType map[core.EventType]map[int64]func(context.Context, core.Event)

	queue  chan core.Event
	ctx    context.Context
	cancel context.CancelFunc
}

func NewEventBus(mode DispatchMode) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &EventBus{
		mode:   mode,
		byType: map[core.EventType]map[int64]func(context.Context, core.Event){},
		queue:  make(chan core.Event, asyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if mode == DispatchAsync {
		for i := 0; i < asyncWorkers; i++ {
			go b.worker()
		}
	}
	return b
}

func (b *EventBus) worker() {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(context.Background(), ev)
		case <-b.ctx.Done():
			return
		}
	}
}

// Close stops the async workers. Queued events may be dropped.
func (b *EventBus) Close() {
	b.cancel()
	// give in-flight handlers a moment to finish
	time.Sleep(10 * time.Millisecond)
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function. Both are safe for concurrent use.
func (b *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handlers := b.byType[typ]
	if handlers == nil {
		handlers = map[int64]func(context.Context, core.Event){}
		b.byType[typ] = handlers
	}
	handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byType[typ], id)
	}
}

// Publish delivers ev to every handler registered for its type. In async
// mode the event is enqueued and dropped if the queue is full; publishing
// never blocks the engine's write path.
func (b *EventBus) Publish(ctx context.Context, ev core.Event) {
	if b.mode == DispatchSync {
		b.deliver(ctx, ev)
		return
	}
	select {
	case b.queue <- ev:
	default:
	}
}

func (b *EventBus) deliver(ctx context.Context, ev core.Event) {
	b.mu.RLock()
	handlers := make([]func(context.Context, core.Event), 0, len(b.byType[ev.Type]))
	for _, h := range b.byType[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	// handlers run outside the lock so they can subscribe or unsubscribe
	for _, h := range handlers {
		h(ctx, ev)
	}
}

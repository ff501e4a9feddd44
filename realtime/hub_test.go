package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"loyaltykit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewXPAwarded("bob", "center-1", 10, 10)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.CustomerID != "bob" || received.Type != core.EventXPAwarded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestHubSubjectFilter(t *testing.T) {
	h := NewHub()
	_, ch := h.SubscribeSubject(2, "alice", "center-1")

	h.Broadcast(context.Background(), core.NewSyncRecorded("bob", "center-1", 1, 1))
	h.Broadcast(context.Background(), core.NewSyncRecorded("alice", "center-2", 1, 1))
	h.Broadcast(context.Background(), core.NewSyncRecorded("alice", "center-1", 3, 5))

	received := <-ch
	if received.CustomerID != "alice" || received.CenterID != "center-1" || received.Streak != 3 {
		t.Fatalf("unexpected event: %+v", received)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event: %+v", ev)
	default:
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewAchievementUnlocked("alice", "center-1", core.AchFirstSync, 50)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Achievement != core.AchFirstSync {
		t.Fatalf("unexpected achievement: %s", out.Achievement)
	}
}

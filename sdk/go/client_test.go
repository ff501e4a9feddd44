package sdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loyaltykit/core"
)

func TestClient_RecordSyncProgressStateHealth(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()

	result, err := client.RecordSync(ctx, "center-1", "alice")
	if err != nil {
		t.Fatalf("record sync: %v", err)
	}
	if result.Stats.CurrentStreak != 1 || result.XPAwarded != 60 {
		t.Fatalf("unexpected sync result: %+v", result)
	}

	if err := client.UpdateProgress(ctx, "center-1", "alice", "first_sync", 1); err != nil {
		t.Fatalf("update progress: %v", err)
	}

	snap, err := client.State(ctx, "center-1", "alice")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if snap.Stats.CustomerID != "alice" || snap.Stats.TotalXP != 60 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	entries, err := client.Leaderboard(ctx, 5)
	if err != nil || len(entries) != 1 || entries[0].CustomerID != "alice" {
		t.Fatalf("leaderboard: %+v err=%v", entries, err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_InputValidation(t *testing.T) {
	client, err := NewClient("http://localhost:1/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.RecordSync(context.Background(), "", "alice"); err != ErrEmptyCenterID {
		t.Fatalf("expected ErrEmptyCenterID, got %v", err)
	}
	if _, err := client.State(context.Background(), "center-1", " "); err != ErrEmptyCustomerID {
		t.Fatalf("expected ErrEmptyCustomerID, got %v", err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventXPAwarded {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

// test server implementing the minimal API surface expected by the SDK.
func newTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","checks":{"storage":"ok"}}`))
	})
	mux.HandleFunc("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"entries":[{"customer_id":"alice","center_id":"center-1","xp":60}]}`))
	})
	mux.HandleFunc("/api/centers/", func(w http.ResponseWriter, r *http.Request) {
		// /api/centers/{center}/customers/{id}[/sync|/achievements/{type}]
		path := r.URL.Path[len("/api/centers/"):]
		parts := strings.Split(path, "/")
		if len(parts) < 3 || parts[1] != "customers" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		customerID := parts[2]
		w.Header().Set("Content-Type", "application/json")
		if len(parts) == 3 && r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"achievements":[],"stats":{"customer_id":"` + customerID + `","center_id":"` + parts[0] + `","total_xp":60,"level":1,"current_streak":1,"total_syncs":1},"level":{"level":1,"name":"Rookie"}}`))
			return
		}
		if len(parts) == 4 && parts[3] == "sync" && r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"stats":{"customer_id":"` + customerID + `","current_streak":1,"total_syncs":1,"total_xp":60,"level":1},"xp_awarded":60,"level":{"level":1,"name":"Rookie"}}`))
			return
		}
		if len(parts) == 5 && parts[3] == "achievements" && r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		evt := core.NewXPAwarded("alice", "center-1", 10, 10)
		_ = conn.WriteJSON(evt)
	})

	return httptest.NewServer(mux)
}

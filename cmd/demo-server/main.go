package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	mem "loyaltykit/adapters/memory"
	ws "loyaltykit/adapters/websocket"
	"loyaltykit/core"
	"loyaltykit/engine"
	"loyaltykit/realtime"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()
	store := mem.New()
	bus := engine.NewEventBus(engine.DispatchAsync)
	svc := engine.NewLoyaltyService(store, bus)
	hub := realtime.NewHub()

	// Forward loyalty events to WebSocket clients
	bus.Subscribe(core.EventSyncRecorded, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	bus.Subscribe(core.EventAchievementUnlocked, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { hub.Broadcast(ctx, e) })

	http.Handle("/ws", ws.Handler(hub))
	http.HandleFunc("/centers/", func(w http.ResponseWriter, r *http.Request) {
		// routes: POST /centers/{center}/customers/{id}/sync,
		//         POST /centers/{center}/customers/{id}/achievements/{type}?progress=n,
		//         GET  /centers/{center}/customers/{id}
		parts := split(r.URL.Path, '/')
		if len(parts) < 4 || parts[0] != "centers" || parts[2] != "customers" {
			http.NotFound(w, r)
			return
		}
		center := core.CenterID(parts[1])
		customer := core.CustomerID(parts[3])
		switch r.Method {
		case http.MethodPost:
			if len(parts) == 5 && parts[4] == "sync" {
				result, err := svc.RecordSync(ctx, customer, center)
				writeJSON(w, map[string]any{"result": result, "err": errString(err)})
				return
			}
			if len(parts) == 6 && parts[4] == "achievements" {
				progress, _ := strconv.Atoi(r.URL.Query().Get("progress"))
				err := svc.UpdateProgress(ctx, customer, center, core.AchievementType(parts[5]), progress)
				writeJSON(w, map[string]any{"ok": err == nil, "err": errString(err)})
				return
			}
		case http.MethodGet:
			snap, err := svc.State(ctx, customer, center)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, snap)
			return
		}
		http.NotFound(w, r)
	})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", nil); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

func split(p string, sep rune) []string {
	var parts []string
	current := make([]rune, 0, len(p))

	for _, r := range p {
		if r == sep {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
			continue
		}
		current = append(current, r)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}

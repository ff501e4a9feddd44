package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"loyaltykit/core"
	"loyaltykit/realtime"
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// loyalty events from the hub. Passing ?customer= and ?center= query
// parameters narrows the stream to a single customer.
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		customer := core.CustomerID(r.URL.Query().Get("customer"))
		center := core.CenterID(r.URL.Query().Get("center"))

		var (
			id int
			ch <-chan core.Event
		)
		if customer != "" && center != "" {
			id, ch = hub.SubscribeSubject(256, customer, center)
		} else {
			id, ch = hub.Subscribe(256)
		}
		defer hub.Unsubscribe(id)

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		for ev := range ch {
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}

package routes

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/duythong28/connect-career-fe-sub001/internal/notify"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
	// The viewer binds to loopback; cross-origin browser pages are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent is the envelope pushed over the events socket.
type wsEvent struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// registerEventRoutes wires the push surfaces.
//
//	GET /api/events/ws      — websocket with chatbox, message and
//	                          notification events
//	GET /api/notifications  — recent notifications
func registerEventRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		recent := d.Notify.Recent()
		if recent == nil {
			recent = []notify.Notification{}
		}
		writeJSON(w, recent)
	})

	handleGet(mux, "/api/events/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("EVENTS: ws upgrade: %v", err)
			return
		}
		defer conn.Close()

		boxEvents := d.Registry.Subscribe()
		defer d.Registry.Unsubscribe(boxEvents)
		noteEvents := d.Notify.Subscribe()
		defer d.Notify.Unsubscribe(noteEvents)
		msgEvents, cancelMsgs := d.Channels.Subscribe()
		defer cancelMsgs()

		// Drain the reader so pings and close frames are processed; the
		// socket is push-only otherwise.
		readerDone := make(chan struct{})
		go func() {
			defer close(readerDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			var evt wsEvent
			select {
			case <-readerDone:
				return
			case e, ok := <-boxEvents:
				if !ok {
					return
				}
				evt = wsEvent{Kind: "chatbox", Payload: e}
			case n, ok := <-noteEvents:
				if !ok {
					return
				}
				evt = wsEvent{Kind: "notification", Payload: n}
			case m, ok := <-msgEvents:
				if !ok {
					return
				}
				evt = wsEvent{Kind: m.Type, Payload: m.Message}
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	})
}

package routes

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/duythong28/connect-career-fe-sub001/internal/call"
)

// registerCallRoutes wires the call endpoints. Calls may be nil when the
// feature is disabled; GET /api/call/mode stays available either way so the
// frontend always has a safe endpoint to query.
func registerCallRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/api/call/mode", func(w http.ResponseWriter, r *http.Request) {
		mode := "disabled"
		if d.Calls != nil {
			mode = "native"
		}
		writeJSON(w, map[string]string{"mode": mode})
	})

	if d.Calls == nil {
		return
	}

	// POST /api/call/start
	handlePost(mux, "/api/call/start", func(w http.ResponseWriter, r *http.Request, req struct {
		Kind       string `json:"kind"`
		ChannelID  string `json:"channel_id"`
		PeerID     string `json:"peer_id"`
		PeerName   string `json:"peer_name"`
		PeerAvatar string `json:"peer_avatar"`
	}) {
		if req.ChannelID == "" || req.PeerID == "" {
			http.Error(w, "missing channel_id or peer_id", http.StatusBadRequest)
			return
		}
		peer := call.Peer{ID: req.PeerID, Name: req.PeerName, Avatar: req.PeerAvatar}

		var err error
		switch req.Kind {
		case "", "video":
			err = d.Calls.StartVideoCall(r.Context(), req.ChannelID, peer)
		case "voice":
			err = d.Calls.StartVoiceCall(r.Context(), req.ChannelID, peer)
		default:
			http.Error(w, "kind must be video or voice", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("start call failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "started", "channel_id": req.ChannelID})
	})

	// POST /api/call/answer
	handlePost(mux, "/api/call/answer", func(w http.ResponseWriter, r *http.Request, req struct{}) {
		if err := d.Calls.Answer(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("answer failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "answered"})
	})

	// POST /api/call/decline
	handlePost(mux, "/api/call/decline", func(w http.ResponseWriter, r *http.Request, req struct{}) {
		d.Calls.Decline(r.Context())
		writeJSON(w, map[string]string{"status": "declined"})
	})

	// POST /api/call/end
	handlePost(mux, "/api/call/end", func(w http.ResponseWriter, r *http.Request, req struct{}) {
		d.Calls.End(r.Context())
		writeJSON(w, map[string]string{"status": "ended"})
	})

	// GET /api/call/current — the active session, or null when idle.
	handleGet(mux, "/api/call/current", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Calls.Current())
	})

	// GET /api/call/events — SSE stream of call notifications (ringing,
	// connected, declined, ended). Each event also carries the session
	// snapshot so the UI can render without a follow-up fetch.
	handleGet(mux, "/api/call/events", func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		noteCh := d.Notify.Subscribe()
		defer d.Notify.Unsubscribe(noteCh)

		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-noteCh:
				if !ok {
					return
				}
				data, err := json.Marshal(map[string]any{
					"notification": n,
					"session":      d.Calls.Current(),
				})
				if err != nil {
					log.Printf("VIEWER: marshal error: %v", err)
					continue
				}
				fmt.Fprintf(w, "event: call\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	})
}

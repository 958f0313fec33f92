package routes

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/duythong28/connect-career-fe-sub001/internal/chatbox"
)

// registerChatboxRoutes wires the conversation-window endpoints.
//
//	GET  /api/chatboxes          — list open windows
//	POST /api/chatboxes/open     — open (or surface) a window
//	POST /api/chatboxes/close    — close a window
//	POST /api/chatboxes/minimize — collapse a window
//	POST /api/chatboxes/maximize — restore a window
//	POST /api/chatboxes/send     — send a chat message on a window's channel
//	GET  /api/chatboxes/events   — SSE stream of registry events
func registerChatboxRoutes(mux *http.ServeMux, d Deps) {
	handleGet(mux, "/api/chatboxes", func(w http.ResponseWriter, r *http.Request) {
		boxes := d.Registry.List()
		if boxes == nil {
			boxes = []chatbox.ChatBox{}
		}
		writeJSON(w, boxes)
	})

	handlePost(mux, "/api/chatboxes/open", func(w http.ResponseWriter, r *http.Request, req struct {
		ChannelID       string `json:"channel_id"`
		RecipientID     string `json:"recipient_id"`
		RecipientName   string `json:"recipient_name"`
		RecipientAvatar string `json:"recipient_avatar"`
	}) {
		if req.ChannelID == "" {
			http.Error(w, "missing channel_id", http.StatusBadRequest)
			return
		}
		if err := d.Channels.JoinChannel(req.ChannelID); err != nil {
			http.Error(w, fmt.Sprintf("join failed: %v", err), http.StatusInternalServerError)
			return
		}
		d.Registry.Open(req.ChannelID, nil, req.RecipientID, req.RecipientName, req.RecipientAvatar)
		writeJSON(w, map[string]string{"status": "open", "channel_id": req.ChannelID})
	})

	handlePost(mux, "/api/chatboxes/close", func(w http.ResponseWriter, r *http.Request, req struct {
		ChannelID string `json:"channel_id"`
	}) {
		if req.ChannelID == "" {
			http.Error(w, "missing channel_id", http.StatusBadRequest)
			return
		}
		d.Registry.Close(req.ChannelID)
		writeJSON(w, map[string]string{"status": "closed"})
	})

	handlePost(mux, "/api/chatboxes/minimize", func(w http.ResponseWriter, r *http.Request, req struct {
		ChannelID string `json:"channel_id"`
	}) {
		d.Registry.Minimize(req.ChannelID)
		writeJSON(w, map[string]string{"status": "minimized"})
	})

	handlePost(mux, "/api/chatboxes/maximize", func(w http.ResponseWriter, r *http.Request, req struct {
		ChannelID string `json:"channel_id"`
	}) {
		d.Registry.Maximize(req.ChannelID)
		writeJSON(w, map[string]string{"status": "maximized"})
	})

	handlePost(mux, "/api/chatboxes/send", func(w http.ResponseWriter, r *http.Request, req struct {
		ChannelID string `json:"channel_id"`
		Text      string `json:"text"`
	}) {
		if req.ChannelID == "" || req.Text == "" {
			http.Error(w, "missing channel_id or text", http.StatusBadRequest)
			return
		}
		if err := d.Channels.Publish(r.Context(), req.ChannelID, req.Text, nil); err != nil {
			http.Error(w, fmt.Sprintf("send failed: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "sent"})
	})

	// GET /api/chatboxes/events — SSE stream of registry events.
	handleGet(mux, "/api/chatboxes/events", func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		evtCh := d.Registry.Subscribe()
		defer d.Registry.Unsubscribe(evtCh)

		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-evtCh:
				if !ok {
					return
				}
				data, err := json.Marshal(evt)
				if err != nil {
					log.Printf("CHATBOX: marshal error: %v", err)
					continue
				}
				fmt.Fprintf(w, "event: chatbox\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	})
}

package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/duythong28/connect-career-fe-sub001/internal/assistant"
)

// registerAssistantRoutes relays assistant turns to the browser as SSE.
//
//	POST /api/assistant/{session}/stream
//
// The request body carries the user turn; chunk, complete and error frames
// are forwarded as SSE events as the backend produces them.
func registerAssistantRoutes(mux *http.ServeMux, d Deps) {
	if d.Assistant == nil {
		return
	}

	mux.HandleFunc("/api/assistant/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/assistant/")
		sessionID, ok := strings.CutSuffix(rest, "/stream")
		sessionID = strings.TrimSuffix(sessionID, "/")
		if !ok || sessionID == "" || strings.Contains(sessionID, "/") {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Content string `json:"content"`
			assistant.Options
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json body", http.StatusBadRequest)
			return
		}
		if req.Content == "" {
			http.Error(w, "missing content", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		sseHeaders(w)
		flusher.Flush()

		emit := func(event string, payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		}

		_ = d.Assistant.Stream(r.Context(), sessionID, req.Content, req.Options, assistant.Callbacks{
			OnChunk: func(content string) {
				emit("chunk", map[string]string{"content": content})
			},
			OnComplete: func(message string, meta map[string]any) {
				emit("complete", map[string]any{"message": message, "metadata": meta})
			},
			OnError: func(err error) {
				emit("error", map[string]string{"error": err.Error()})
			},
		})
	})
}

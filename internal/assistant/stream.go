// Package assistant streams chat completions from the assistant backend.
//
// Each turn is one POST whose chunked response body carries newline-delimited
// frames, every frame a "data:" prefix followed by a JSON envelope with a
// type and a payload. Content deltas are forwarded as they arrive, a
// complete frame records the turn's metadata, and the turn finishes when
// the body ends (or an error frame aborts it).
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/duythong28/connect-career-fe-sub001/internal/util"
)

// Frame type markers in the stream.
const (
	frameChunk    = "chunk"
	frameComplete = "complete"
	frameError    = "error"

	dataPrefix = "data:"
)

// Options are the per-turn request knobs.
type Options struct {
	Attachments         []string       `json:"attachments,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	SearchEnabled       bool           `json:"searchEnabled,omitempty"`
	ClickedSuggestionID string         `json:"clickedSuggestionId,omitempty"`
	ManualRetryAttempts int            `json:"manualRetryAttempts,omitempty"`
}

// Callbacks receive the turn's output. OnChunk fires once per content delta,
// in order. Exactly one of OnComplete or OnError fires afterwards, never
// both: OnComplete when the body is exhausted, with the assembled message and
// the metadata recorded by a complete frame (nil when none arrived), OnError
// on any failure. Nil callbacks are skipped.
type Callbacks struct {
	OnChunk    func(content string)
	OnComplete func(message string, meta map[string]any)
	OnError    func(err error)
}

// Client talks to the assistant backend.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the assistant at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: util.NormalizeURL(baseURL),
		HTTP:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type turnRequest struct {
	Content string `json:"content"`
	Options
}

// Stream sends one user turn for sessionID and pumps the response through
// cb until the stream finishes. It returns after the terminal callback has
// fired. The returned error mirrors what OnError got, nil on completion.
func (c *Client) Stream(ctx context.Context, sessionID, content string, opts Options, cb Callbacks) error {
	body, err := json.Marshal(turnRequest{Content: content, Options: opts})
	if err != nil {
		err = fmt.Errorf("encode turn request: %w", err)
		cb.fail(err)
		return err
	}

	url := c.BaseURL + "/sessions/" + sessionID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("build turn request: %w", err)
		cb.fail(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		err = fmt.Errorf("assistant request: %w", err)
		cb.fail(err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("assistant returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		cb.fail(err)
		return err
	}

	return consume(resp.Body, cb)
}

// consume reads frames off r and drives cb. Split out from Stream so the
// framing can be tested against scripted readers without an HTTP server.
func consume(r io.Reader, cb Callbacks) error {
	sink := &terminalSink{cb: cb}
	defer func() {
		if rec := recover(); rec != nil {
			sink.fail(fmt.Errorf("assistant stream panic: %v", rec))
		}
	}()

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				nl := bytes.IndexByte(pending, '\n')
				if nl < 0 {
					break
				}
				line := pending[:nl]
				pending = pending[nl+1:]
				if sink.handleLine(string(line)) {
					return sink.err
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				sink.fail(fmt.Errorf("read assistant stream: %w", readErr))
				return sink.err
			}
			break
		}
	}
	// A final unterminated line is still a frame.
	if len(pending) > 0 {
		if sink.handleLine(string(pending)) {
			return sink.err
		}
	}
	sink.complete()
	return sink.err
}

// terminalSink enforces the exactly-once terminal contract around Callbacks
// and accumulates the assembled message across chunks.
type terminalSink struct {
	cb   Callbacks
	done bool
	err  error
	full strings.Builder
	meta map[string]any
}

// handleLine processes one frame line. It reports true when the stream has
// reached a terminal frame and reading should stop.
func (s *terminalSink) handleLine(line string) bool {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return false
	}
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		// Only data frames are significant; SSE comments, event names
		// and other line types are skipped.
		return false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return false
	}

	var frame struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		log.Printf("ASSISTANT: malformed frame, passing through: %v", err)
		s.chunk(payload)
		return false
	}

	switch frame.Type {
	case frameChunk:
		if content, ok := extractContent(frame.Data); ok {
			s.chunk(content)
		}
		return false
	case frameComplete:
		// The complete frame only records the terminal metadata; the
		// stream keeps going until the body is exhausted.
		if content, ok := extractContent(frame.Data); ok && content != "" {
			s.chunk(content)
		}
		s.meta = completeMeta(frame.Data)
		return false
	case frameError:
		s.fail(fmt.Errorf("assistant error: %s", errorText(frame.Data)))
		return true
	default:
		// Unknown frame types are skipped so the protocol can grow.
		return false
	}
}

func (s *terminalSink) chunk(content string) {
	if s.done {
		return
	}
	s.full.WriteString(content)
	if s.cb.OnChunk != nil {
		s.cb.OnChunk(content)
	}
}

func (s *terminalSink) complete() {
	if s.done {
		return
	}
	s.done = true
	if s.cb.OnComplete != nil {
		s.cb.OnComplete(s.full.String(), s.meta)
	}
}

func (s *terminalSink) fail(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// fail fires OnError for failures before any frame was read.
func (cb Callbacks) fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// extractContent finds the content delta in a frame payload. The backend
// emits it at data.content or, for relayed upstream frames, one level down
// at data.data.content.
func extractContent(data map[string]any) (string, bool) {
	if data == nil {
		return "", false
	}
	if s, ok := data["content"].(string); ok {
		return s, true
	}
	if inner, ok := data["data"].(map[string]any); ok {
		if s, ok := inner["content"].(string); ok {
			return s, true
		}
	}
	return "", false
}

// completeMeta picks the metadata object off a complete frame: the explicit
// metadata field when present, otherwise the whole payload.
func completeMeta(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	meta, _ := data["metadata"].(map[string]any)
	if meta == nil {
		meta = data
	}
	inner, _ := data["data"].(map[string]any)
	// Suggestions and agent info ride next to metadata, at the outer or
	// the nested payload level; fold them in unless the metadata object
	// already carries its own. Outer wins over nested.
	for _, key := range []string{"suggestions", "agent"} {
		if _, exists := meta[key]; exists {
			continue
		}
		if v, ok := data[key]; ok {
			meta[key] = v
			continue
		}
		if inner != nil {
			if v, ok := inner[key]; ok {
				meta[key] = v
			}
		}
	}
	return meta
}

func errorText(data map[string]any) string {
	for _, key := range []string{"error", "message"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	if inner, ok := data["data"].(map[string]any); ok {
		for _, key := range []string{"error", "message"} {
			if s, ok := inner[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return "stream failed"
}

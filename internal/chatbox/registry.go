// Package chatbox tracks the set of open conversation windows.
//
// The registry holds at most MaxOpen windows. Opening a new channel at
// capacity silently evicts the oldest window by open time, not by recency of
// interaction: a minimized-but-active window is evicted if three newer ones
// are opened after it. That trade-off is deliberate, and eviction is surfaced
// as an event so callers can release channel resources the registry itself
// never touches.
package chatbox

import (
	"log"
	"sync"
)

// MaxOpen is the capacity of the registry.
const MaxOpen = 3

// ChatBox is one open conversation window. Identity equals the channel ID;
// no two boxes reference the same channel.
type ChatBox struct {
	ID          string `json:"id"`
	IsMinimized bool   `json:"is_minimized"`
	// Position is the current insertion-order index, used by layout code
	// for render offsets only. Eviction priority is open order, not this.
	Position int `json:"position"`

	RecipientID     string `json:"recipient_id,omitempty"`
	RecipientName   string `json:"recipient_name,omitempty"`
	RecipientAvatar string `json:"recipient_avatar,omitempty"`

	// ChannelRef is the opaque transport handle the box was opened with.
	// The registry never inspects it.
	ChannelRef any `json:"-"`
}

// Event type constants.
const (
	EventOpened    = "opened"
	EventClosed    = "closed"
	EventEvicted   = "evicted"
	EventMinimized = "minimized"
	EventMaximized = "maximized"
)

// Event is emitted to registry listeners.
type Event struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Registry owns the open chat windows.
type Registry struct {
	mu        sync.RWMutex
	boxes     []*ChatBox
	listeners []chan Event
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Open shows the window for channelID. If the channel is already open the
// existing window is un-minimized in place: count, identity and relative
// order are unchanged. Otherwise a new window is appended; at capacity the
// oldest window is evicted first, with an EventEvicted but no other teardown.
func (r *Registry) Open(channelID string, channelRef any, recipientID, recipientName, recipientAvatar string) {
	var events []Event

	r.mu.Lock()
	if b := r.find(channelID); b != nil {
		b.IsMinimized = false
		r.mu.Unlock()
		r.notify(Event{Type: EventOpened, ID: channelID})
		return
	}

	if len(r.boxes) == MaxOpen {
		oldest := r.boxes[0]
		r.boxes = r.boxes[1:]
		events = append(events, Event{Type: EventEvicted, ID: oldest.ID})
		log.Printf("CHATBOX: evicted %s to open %s", oldest.ID, channelID)
	}

	r.boxes = append(r.boxes, &ChatBox{
		ID:              channelID,
		ChannelRef:      channelRef,
		RecipientID:     recipientID,
		RecipientName:   recipientName,
		RecipientAvatar: recipientAvatar,
	})
	r.renumber()
	r.mu.Unlock()

	events = append(events, Event{Type: EventOpened, ID: channelID})
	for _, e := range events {
		r.notify(e)
	}
}

// Close removes the window unconditionally. No-op if absent.
func (r *Registry) Close(channelID string) {
	r.mu.Lock()
	removed := false
	for i, b := range r.boxes {
		if b.ID == channelID {
			r.boxes = append(r.boxes[:i], r.boxes[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		r.renumber()
	}
	r.mu.Unlock()

	if removed {
		r.notify(Event{Type: EventClosed, ID: channelID})
	}
}

// Minimize collapses the window. No-op if absent.
func (r *Registry) Minimize(channelID string) {
	r.setMinimized(channelID, true, EventMinimized)
}

// Maximize restores the window. No-op if absent.
func (r *Registry) Maximize(channelID string) {
	r.setMinimized(channelID, false, EventMaximized)
}

func (r *Registry) setMinimized(channelID string, min bool, evt string) {
	r.mu.Lock()
	b := r.find(channelID)
	if b != nil {
		b.IsMinimized = min
	}
	r.mu.Unlock()

	if b != nil {
		r.notify(Event{Type: evt, ID: channelID})
	}
}

// List returns a snapshot of the open windows in stable insertion order.
func (r *Registry) List() []ChatBox {
	r.mu.RLock()
	out := make([]ChatBox, len(r.boxes))
	for i, b := range r.boxes {
		out[i] = *b
	}
	r.mu.RUnlock()
	return out
}

// Len returns the number of open windows.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.boxes)
	r.mu.RUnlock()
	return n
}

// Subscribe returns a channel that receives registry events.
func (r *Registry) Subscribe() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, 16)
	r.listeners = append(r.listeners, ch)
	return ch
}

// Unsubscribe removes a listener channel.
func (r *Registry) Unsubscribe(ch <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, listener := range r.listeners {
		if listener == ch {
			close(listener)
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Shutdown closes all listener channels.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, listener := range r.listeners {
		close(listener)
	}
	r.listeners = nil
}

// find must be called with the lock held.
func (r *Registry) find(channelID string) *ChatBox {
	for _, b := range r.boxes {
		if b.ID == channelID {
			return b
		}
	}
	return nil
}

// renumber must be called with the lock held.
func (r *Registry) renumber() {
	for i, b := range r.boxes {
		b.Position = i
	}
}

func (r *Registry) notify(evt Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, listener := range r.listeners {
		select {
		case listener <- evt:
		default:
			// Listener buffer full, skip
		}
	}
}

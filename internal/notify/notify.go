// Package notify fans out user-visible notifications (toasts) to shell
// listeners and keeps a bounded history of recent ones.
package notify

import (
	"log"
	"sync"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
	"github.com/duythong28/connect-career-fe-sub001/internal/util"
)

// Notification levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notification is one user-visible message.
type Notification struct {
	Level string `json:"level"`
	Text  string `json:"text"`
	TS    int64  `json:"ts"`
}

// Center collects notifications and delivers them to subscribers.
type Center struct {
	mu        sync.RWMutex
	listeners []chan Notification
	history   *util.RingBuffer[Notification]
}

// NewCenter creates a Center keeping the last historySize notifications.
func NewCenter(historySize int) *Center {
	return &Center{history: util.NewRingBuffer[Notification](historySize)}
}

// Notify records a notification and delivers it to all subscribers.
func (c *Center) Notify(level, text string) {
	n := Notification{Level: level, Text: text, TS: proto.NowMillis()}
	c.history.Push(n)
	log.Printf("NOTIFY: [%s] %s", level, text)

	c.mu.RLock()
	for _, listener := range c.listeners {
		select {
		case listener <- n:
		default:
			// Listener buffer full, skip
		}
	}
	c.mu.RUnlock()
}

// Subscribe returns a channel that receives notifications.
func (c *Center) Subscribe() <-chan Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Notification, 16)
	c.listeners = append(c.listeners, ch)
	return ch
}

// Unsubscribe removes a listener channel.
func (c *Center) Unsubscribe(ch <-chan Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, listener := range c.listeners {
		if listener == ch {
			close(listener)
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Recent returns the retained notifications, oldest first.
func (c *Center) Recent() []Notification {
	return c.history.Snapshot()
}

// Close shuts down the center, closing all listener channels.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, listener := range c.listeners {
		close(listener)
	}
	c.listeners = nil
}

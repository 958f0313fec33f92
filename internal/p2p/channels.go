package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

// Channels multiplexes chat channels over the node's GossipSub mesh and
// fans incoming messages out to local listeners.
type Channels struct {
	node *Node

	mu        sync.RWMutex
	joined    map[string]*channelSub
	listeners []chan *proto.MessageEvent
	closed    bool
}

type channelSub struct {
	topic  *pubsubTopic
	cancel context.CancelFunc
}

// pubsubTopic narrows the pubsub surface the read loop needs. It keeps the
// rest of this file testable without a live mesh.
type pubsubTopic struct {
	ID      string
	Publish func(ctx context.Context, data []byte) error
	Close   func() error
}

// NewChannels creates the channel layer on top of node.
func NewChannels(node *Node) *Channels {
	return &Channels{
		node:   node,
		joined: make(map[string]*channelSub),
	}
}

// JoinChannel subscribes to channelID's topic. Joining twice is a no-op.
func (c *Channels) JoinChannel(channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channels closed")
	}
	if _, ok := c.joined[channelID]; ok {
		return nil
	}

	topic, err := c.node.ps.Join(c.node.topicPrefix + channelID)
	if err != nil {
		return fmt.Errorf("join channel %s: %w", channelID, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return fmt.Errorf("subscribe channel %s: %w", channelID, err)
	}

	ctx, cancel := context.WithCancel(c.node.ctx)
	c.joined[channelID] = &channelSub{
		topic: &pubsubTopic{
			ID: channelID,
			Publish: func(ctx context.Context, data []byte) error {
				return topic.Publish(ctx, data)
			},
			Close: func() error {
				sub.Cancel()
				return topic.Close()
			},
		},
		cancel: cancel,
	}

	go func() {
		for {
			m, err := sub.Next(ctx)
			if err != nil {
				return
			}
			c.handleRaw(channelID, m.Data)
		}
	}()

	log.Printf("CHANNEL: joined %s", channelID)
	return nil
}

// LeaveChannel drops the subscription for channelID. No-op if not joined.
func (c *Channels) LeaveChannel(channelID string) {
	c.mu.Lock()
	cs, ok := c.joined[channelID]
	if ok {
		delete(c.joined, channelID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	cs.cancel()
	if err := cs.topic.Close(); err != nil {
		log.Printf("CHANNEL: close %s: %v", channelID, err)
	}
	log.Printf("CHANNEL: left %s", channelID)
}

// Publish sends a message on channelID, joining the channel first if
// needed. The message comes back to local listeners through the mesh like
// everyone else's.
func (c *Channels) Publish(ctx context.Context, channelID, text string, custom map[string]any) error {
	if err := c.JoinChannel(channelID); err != nil {
		return err
	}

	msg := &proto.ChannelMessage{
		ID:      uuid.NewString(),
		Channel: channelID,
		From:    c.node.ID(),
		Text:    text,
		Custom:  custom,
		TS:      proto.NowMillis(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.RLock()
	cs := c.joined[channelID]
	c.mu.RUnlock()
	if cs == nil {
		return fmt.Errorf("channel %s not joined", channelID)
	}
	return cs.topic.Publish(ctx, data)
}

// ID returns the local peer ID stamped on outgoing messages.
func (c *Channels) ID() string {
	return c.node.ID()
}

// Joined returns the IDs of the currently joined channels.
func (c *Channels) Joined() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	return out
}

// Subscribe returns a channel of message events and a cancel func.
func (c *Channels) Subscribe() (chan *proto.MessageEvent, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *proto.MessageEvent, 64)
	c.listeners = append(c.listeners, ch)
	return ch, func() { c.unsubscribe(ch) }
}

func (c *Channels) unsubscribe(ch chan *proto.MessageEvent) {
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

// handleRaw decodes a wire payload and fans it out. Undecodable payloads
// are dropped; the mesh is open and peers may speak other dialects.
func (c *Channels) handleRaw(channelID string, data []byte) {
	var msg proto.ChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("CHANNEL: bad payload on %s: %v", channelID, err)
		return
	}
	if msg.Channel == "" {
		msg.Channel = channelID
	}
	c.notify(&proto.MessageEvent{Type: proto.EventMessageNew, Message: &msg})
}

func (c *Channels) notify(evt *proto.MessageEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, listener := range c.listeners {
		select {
		case listener <- evt:
		default:
			// Listener buffer full, skip
		}
	}
}

// Close leaves all channels and closes all listeners.
func (c *Channels) Close() {
	c.mu.Lock()
	c.closed = true
	subs := c.joined
	c.joined = map[string]*channelSub{}
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for id, cs := range subs {
		cs.cancel()
		if err := cs.topic.Close(); err != nil {
			log.Printf("CHANNEL: close %s: %v", id, err)
		}
	}
	for _, listener := range listeners {
		close(listener)
	}
}

// Package mq is the broker-backed channel transport. It mirrors the
// GossipSub transport's surface over a RabbitMQ topic exchange, for
// deployments where peers cannot reach each other directly.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
	"github.com/duythong28/connect-career-fe-sub001/internal/util"
)

const (
	// routingPrefix maps a channel ID onto the exchange's routing space.
	routingPrefix = "channel."

	confirmTimeout = 5 * time.Second
)

// Options configure the broker connection.
type Options struct {
	URL      string
	Exchange string
	// Queue names the client's private queue. Empty means a broker-named
	// exclusive queue that dies with the connection.
	Queue string
	// Retries is how many times Dial re-attempts the initial connection.
	Retries int
	// SelfID stamps outgoing messages. Defaults to the queue name.
	SelfID string
}

// Manager owns the AMQP connection, the per-client queue, and local
// listeners.
type Manager struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	opts    Options
	queue   string
	selfID  string
	confirm chan amqp.Confirmation

	mu        sync.RWMutex
	bound     map[string]struct{}
	listeners []chan *proto.MessageEvent
	closed    bool

	done chan struct{}
}

// Dial connects to the broker, declaring the topic exchange and the client
// queue. Connection attempts back off exponentially, 1s doubling to 30s.
func Dial(ctx context.Context, opts Options) (*Manager, error) {
	var conn *amqp.Connection
	var err error

	backoff := time.Second
	for attempt := 0; ; attempt++ {
		conn, err = amqp.Dial(opts.URL)
		if err == nil {
			break
		}
		if attempt >= opts.Retries {
			return nil, fmt.Errorf("mq: dial after %d attempts: %w", attempt+1, err)
		}
		log.Printf("MQ: dial failed (attempt %d/%d), retrying in %s: %v", attempt+1, opts.Retries+1, backoff, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: declare exchange %s: %w", opts.Exchange, err)
	}

	// Broker-named queues are exclusive and auto-delete; named queues are
	// durable so messages survive a client restart.
	durable := opts.Queue != ""
	q, err := ch.QueueDeclare(opts.Queue, durable, !durable, !durable, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: declare queue: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: enable confirm mode: %w", err)
	}
	confirm := ch.NotifyPublish(make(chan amqp.Confirmation, 16))

	selfID := opts.SelfID
	if selfID == "" {
		selfID = q.Name
	}

	m := &Manager{
		conn:    conn,
		ch:      ch,
		opts:    opts,
		queue:   q.Name,
		selfID:  selfID,
		confirm: confirm,
		bound:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	deliveries, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mq: consume: %w", err)
	}
	go m.consumeLoop(deliveries)

	log.Printf("MQ: connected, exchange=%s queue=%s", opts.Exchange, q.Name)
	return m, nil
}

// ID returns the identity stamped on outgoing messages.
func (m *Manager) ID() string {
	return m.selfID
}

// JoinChannel binds the client queue to channelID's routing key. Joining
// twice is a no-op.
func (m *Manager) JoinChannel(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mq: closed")
	}
	if _, ok := m.bound[channelID]; ok {
		return nil
	}
	if err := m.ch.QueueBind(m.queue, routingPrefix+channelID, m.opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("mq: bind channel %s: %w", channelID, err)
	}
	m.bound[channelID] = struct{}{}
	log.Printf("CHANNEL: joined %s", channelID)
	return nil
}

// LeaveChannel unbinds channelID. No-op if not joined.
func (m *Manager) LeaveChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bound[channelID]; !ok {
		return
	}
	delete(m.bound, channelID)
	if err := m.ch.QueueUnbind(m.queue, routingPrefix+channelID, m.opts.Exchange, nil); err != nil {
		log.Printf("CHANNEL: unbind %s: %v", channelID, err)
		return
	}
	log.Printf("CHANNEL: left %s", channelID)
}

// Publish sends a message on channelID and waits for the broker's publish
// confirmation. The channel is joined first so our own copy comes back
// through the queue like everyone else's.
func (m *Manager) Publish(ctx context.Context, channelID, text string, custom map[string]any) error {
	if err := m.JoinChannel(channelID); err != nil {
		return err
	}

	msg := &proto.ChannelMessage{
		ID:      uuid.NewString(),
		Channel: channelID,
		From:    m.selfID,
		Text:    text,
		Custom:  custom,
		TS:      proto.NowMillis(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mq: encode message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, util.DefaultPublishTimeout)
	defer cancel()
	err = m.ch.PublishWithContext(pubCtx, m.opts.Exchange, routingPrefix+channelID, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("mq: publish on %s: %w", channelID, err)
	}

	select {
	case conf, ok := <-m.confirm:
		if !ok {
			return fmt.Errorf("mq: confirm channel closed")
		}
		if !conf.Ack {
			return fmt.Errorf("mq: broker nacked message %s", msg.ID)
		}
	case <-time.After(confirmTimeout):
		return fmt.Errorf("mq: no publish confirmation for %s", msg.ID)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Joined returns the IDs of the currently bound channels.
func (m *Manager) Joined() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bound))
	for id := range m.bound {
		out = append(out, id)
	}
	return out
}

// Subscribe returns a channel of message events and a cancel func.
func (m *Manager) Subscribe() (chan *proto.MessageEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *proto.MessageEvent, 64)
	m.listeners = append(m.listeners, ch)
	return ch, func() { m.unsubscribe(ch) }
}

func (m *Manager) unsubscribe(ch chan *proto.MessageEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, listener := range m.listeners {
		if listener == ch {
			close(listener)
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Manager) consumeLoop(deliveries <-chan amqp.Delivery) {
	defer close(m.done)
	for d := range deliveries {
		m.handleDelivery(d.RoutingKey, d.Body)
	}
}

// handleDelivery decodes one broker delivery and fans it out. Undecodable
// bodies are dropped.
func (m *Manager) handleDelivery(routingKey string, body []byte) {
	var msg proto.ChannelMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("CHANNEL: bad payload on %s: %v", routingKey, err)
		return
	}
	if msg.Channel == "" && len(routingKey) > len(routingPrefix) {
		msg.Channel = routingKey[len(routingPrefix):]
	}

	m.mu.RLock()
	for _, listener := range m.listeners {
		select {
		case listener <- &proto.MessageEvent{Type: proto.EventMessageNew, Message: &msg}:
		default:
			// Listener buffer full, skip
		}
	}
	m.mu.RUnlock()
}

// Close tears down the broker connection and all listeners.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	listeners := m.listeners
	m.listeners = nil
	m.mu.Unlock()

	_ = m.ch.Close()
	_ = m.conn.Close()
	<-m.done

	for _, listener := range listeners {
		close(listener)
	}
}

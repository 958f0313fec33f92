package mq

import (
	"testing"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

func testManager() *Manager {
	return &Manager{
		selfID: "me",
		bound:  map[string]struct{}{},
		done:   make(chan struct{}),
	}
}

func TestHandleDeliveryFansOut(t *testing.T) {
	m := testManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.handleDelivery("channel.ch-1", []byte(`{"id":"m1","channel":"ch-1","from":"alice","text":"hi"}`))

	select {
	case evt := <-ch:
		if evt.Type != proto.EventMessageNew || evt.Message.Text != "hi" {
			t.Fatalf("unexpected event %+v", evt)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestHandleDeliveryDerivesChannelFromRoutingKey(t *testing.T) {
	m := testManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.handleDelivery("channel.ch-7", []byte(`{"id":"m1","from":"alice","text":"hi"}`))

	evt := <-ch
	if evt.Message.Channel != "ch-7" {
		t.Fatalf("channel not derived, got %q", evt.Message.Channel)
	}
}

func TestHandleDeliveryDropsBadBody(t *testing.T) {
	m := testManager()
	ch, cancel := m.Subscribe()
	defer cancel()

	m.handleDelivery("channel.ch-1", []byte("not json"))
	if len(ch) != 0 {
		t.Fatal("bad body must not produce an event")
	}
}

func TestUnsubscribeClosesListener(t *testing.T) {
	m := testManager()
	ch, cancel := m.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// Safe to deliver after unsubscribe.
	m.handleDelivery("channel.ch-1", []byte(`{"id":"m1"}`))
}

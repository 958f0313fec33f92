// Package call coordinates voice and video calls signaled over chat
// channels. One call at a time: a single session slot arbitrates both the
// outgoing and the incoming path, and whichever side commits the slot
// first wins.
package call

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

// Orchestrator owns the single active call session.
type Orchestrator struct {
	sig    Signaler
	media  MediaProvider
	notify Notifier
	self   Peer

	mu      sync.Mutex
	current *Session

	cancelSub func()
	done      chan struct{}
}

// New creates an orchestrator and starts listening for call offers on the
// signaler's message stream. Call Close to stop.
func New(sig Signaler, media MediaProvider, notify Notifier, self Peer) *Orchestrator {
	o := &Orchestrator{
		sig:    sig,
		media:  media,
		notify: notify,
		self:   self,
		done:   make(chan struct{}),
	}
	ch, cancel := sig.Subscribe()
	o.cancelSub = cancel
	go o.dispatchLoop(ch)
	return o
}

// StartVideoCall starts an outgoing video call on channelID to peer.
func (o *Orchestrator) StartVideoCall(ctx context.Context, channelID string, peer Peer) error {
	return o.startCall(ctx, KindVideo, channelID, peer)
}

// StartVoiceCall starts an outgoing voice call on channelID to peer.
func (o *Orchestrator) StartVoiceCall(ctx context.Context, channelID string, peer Peer) error {
	return o.startCall(ctx, KindVoice, channelID, peer)
}

// startCall runs the outgoing path: mint a signaling ID, join the media
// session right away, then publish the offer on the chat channel. If a call
// is already active the request is dropped without error; double-clicks and
// call-while-busy are not failures.
func (o *Orchestrator) startCall(ctx context.Context, kind Kind, channelID string, peer Peer) error {
	if o.media == nil || o.self.ID == "" {
		log.Printf("CALL: ignoring start on %s, calling is not available", channelID)
		return nil
	}
	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		log.Printf("CALL: ignoring start on %s, a call is already active", channelID)
		return nil
	}
	o.mu.Unlock()

	signalingID := uuid.NewString()
	log.Printf("CALL [%s]: starting %s call on channel %s", signalingID, kind, channelID)

	sess, err := o.media.GetOrCreate(ctx, signalingID, []string{o.self.ID, peer.ID})
	if err != nil {
		o.notify.Notify("error", "call failed")
		return fmt.Errorf("create media session: %w", err)
	}
	if err := sess.Join(ctx); err != nil {
		if lerr := sess.Leave(ctx); lerr != nil {
			log.Printf("CALL [%s]: leave after failed join: %v", signalingID, lerr)
		}
		o.notify.Notify("error", "call failed")
		return fmt.Errorf("join media session: %w", err)
	}

	text, custom := BuildInvitation(kind, signalingID, channelID, o.self)
	if err := o.sig.Publish(ctx, channelID, text, custom); err != nil {
		if lerr := sess.Leave(ctx); lerr != nil {
			log.Printf("CALL [%s]: leave after failed offer: %v", signalingID, lerr)
		}
		o.notify.Notify("error", "call failed")
		return fmt.Errorf("publish call offer: %w", err)
	}

	o.mu.Lock()
	if o.current != nil {
		// An incoming offer won the slot while we were joining. Back out
		// quietly; the user already sees the other call.
		o.mu.Unlock()
		log.Printf("CALL [%s]: lost slot race, backing out", signalingID)
		if lerr := sess.Leave(ctx); lerr != nil {
			log.Printf("CALL [%s]: leave after lost race: %v", signalingID, lerr)
		}
		return nil
	}
	o.current = &Session{
		Kind:        kind,
		Direction:   DirectionOutgoing,
		Peer:        peer,
		SignalingID: signalingID,
		ChannelID:   channelID,
		State:       StateOutgoingJoined,
		media:       sess,
	}
	o.mu.Unlock()
	return nil
}

// Answer accepts the pending incoming call: join the media session that the
// offer prepared, and for voice calls switch the camera off right after. A
// failed join leaves the offer pending so the user can retry or decline.
func (o *Orchestrator) Answer(ctx context.Context) error {
	o.mu.Lock()
	cur := o.current
	if cur == nil || cur.State != StateIncomingPending {
		o.mu.Unlock()
		return fmt.Errorf("no incoming call to answer")
	}
	signalingID := cur.SignalingID
	kind := cur.Kind
	peerID := cur.Peer.ID
	label := peerLabel(cur.Peer)
	sess := cur.media
	o.mu.Unlock()

	if sess == nil {
		if o.media == nil {
			o.notify.Notify("error", "could not join call")
			return fmt.Errorf("no media provider")
		}
		var err error
		sess, err = o.media.GetOrCreate(ctx, signalingID, []string{o.self.ID, peerID})
		if err != nil {
			o.notify.Notify("error", "could not join call")
			return fmt.Errorf("create media session: %w", err)
		}
	}
	if err := sess.Join(ctx); err != nil {
		o.notify.Notify("error", "could not join call")
		return fmt.Errorf("join media session: %w", err)
	}
	if kind == KindVoice {
		if err := sess.DisableCamera(ctx); err != nil {
			log.Printf("CALL [%s]: disable camera: %v", signalingID, err)
		}
	}

	o.mu.Lock()
	if o.current == cur {
		cur.media = sess
		cur.State = StateConnected
	}
	o.mu.Unlock()

	log.Printf("CALL [%s]: answered", signalingID)
	o.notify.Notify("info", "connected to "+label)
	return nil
}

// Decline rejects the current call. The slot is cleared no matter what;
// media teardown problems are logged, never surfaced.
func (o *Orchestrator) Decline(ctx context.Context) {
	cur := o.takeCurrent()
	if cur == nil {
		return
	}
	o.teardown(ctx, cur)
	log.Printf("CALL [%s]: declined", cur.SignalingID)
	o.notify.Notify("info", "declined call from "+peerLabel(cur.Peer))
}

// End hangs up the current call. Same guarantees as Decline.
func (o *Orchestrator) End(ctx context.Context) {
	cur := o.takeCurrent()
	if cur == nil {
		return
	}
	o.teardown(ctx, cur)
	log.Printf("CALL [%s]: ended", cur.SignalingID)
	o.notify.Notify("info", "call with "+peerLabel(cur.Peer)+" ended")
}

// Current returns a snapshot of the active session, or nil when idle.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	snap := *o.current
	snap.media = nil
	return &snap
}

// Close stops the offer listener. Any active call is left to End.
func (o *Orchestrator) Close() {
	if o.cancelSub != nil {
		o.cancelSub()
	}
	<-o.done
}

// takeCurrent clears the slot and returns what was in it.
func (o *Orchestrator) takeCurrent() *Session {
	o.mu.Lock()
	cur := o.current
	o.current = nil
	o.mu.Unlock()
	return cur
}

func (o *Orchestrator) teardown(ctx context.Context, s *Session) {
	s.State = StateEnded
	if s.media == nil {
		return
	}
	if err := s.media.Leave(ctx); err != nil {
		log.Printf("CALL [%s]: leave media session: %v", s.SignalingID, err)
	}
}

// dispatchLoop consumes the signaler's message stream and admits incoming
// call offers into the session slot. Offers arriving while a call is
// active are dropped, which is also what filters out the echo of our own
// outgoing offer.
func (o *Orchestrator) dispatchLoop(ch chan *proto.MessageEvent) {
	defer close(o.done)
	for evt := range ch {
		if evt == nil || evt.Type != proto.EventMessageNew || evt.Message == nil {
			continue
		}
		if evt.Message.From == o.self.ID {
			continue
		}
		inv, ok := DecodeInvitation(evt.Message, o.self.ID)
		if !ok {
			continue
		}

		o.mu.Lock()
		if o.current != nil {
			o.mu.Unlock()
			log.Printf("CALL [%s]: ignoring offer from %s, a call is already active", inv.SignalingID, inv.Caller.ID)
			continue
		}
		cur := &Session{
			Kind:        inv.Kind,
			Direction:   DirectionIncoming,
			Peer:        inv.Caller,
			SignalingID: inv.SignalingID,
			ChannelID:   inv.ChannelID,
			State:       StateIncomingPending,
		}
		o.current = cur
		o.mu.Unlock()

		// Prepare the media session now so answering only has to join it.
		// No Join here: ringing must not open microphone or camera.
		if o.media != nil {
			sess, err := o.media.GetOrCreate(context.Background(), inv.SignalingID, []string{o.self.ID, inv.Caller.ID})
			if err != nil {
				log.Printf("CALL [%s]: prepare media session: %v", inv.SignalingID, err)
			} else {
				o.mu.Lock()
				if o.current == cur {
					cur.media = sess
				}
				o.mu.Unlock()
			}
		}

		log.Printf("CALL [%s]: incoming %s call from %s", inv.SignalingID, inv.Kind, inv.Caller.ID)
		o.notify.Notify("info", peerLabel(inv.Caller)+" is calling")
	}
}

func peerLabel(p Peer) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

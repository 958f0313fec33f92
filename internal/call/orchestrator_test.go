package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

type fakeMediaSession struct {
	mu             sync.Mutex
	joined         bool
	left           bool
	cameraDisabled bool

	joinErr    error
	leaveErr   error
	disableErr error
}

func (s *fakeMediaSession) Join(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinErr != nil {
		return s.joinErr
	}
	s.joined = true
	return nil
}

func (s *fakeMediaSession) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = true
	return s.leaveErr
}

func (s *fakeMediaSession) DisableCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disableErr != nil {
		return s.disableErr
	}
	s.cameraDisabled = true
	return nil
}

type fakeMediaProvider struct {
	mu       sync.Mutex
	sessions map[string]*fakeMediaSession
	err      error
	joinErr  error
}

func newFakeMediaProvider() *fakeMediaProvider {
	return &fakeMediaProvider{sessions: map[string]*fakeMediaSession{}}
}

func (p *fakeMediaProvider) GetOrCreate(ctx context.Context, signalingID string, members []string) (MediaSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if s, ok := p.sessions[signalingID]; ok {
		return s, nil
	}
	s := &fakeMediaSession{joinErr: p.joinErr}
	p.sessions[signalingID] = s
	return s, nil
}

func (p *fakeMediaProvider) only(t *testing.T) *fakeMediaSession {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) != 1 {
		t.Fatalf("expected one media session, got %d", len(p.sessions))
	}
	for _, s := range p.sessions {
		return s
	}
	return nil
}

type published struct {
	channelID string
	text      string
	custom    map[string]any
}

type fakeSignaler struct {
	mu         sync.Mutex
	published  []published
	publishErr error

	// onPublish, when set, runs after a successful publish and before
	// Publish returns, so tests can interleave events mid-call.
	onPublish func()

	events chan *proto.MessageEvent
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{events: make(chan *proto.MessageEvent, 16)}
}

func (s *fakeSignaler) Publish(ctx context.Context, channelID, text string, custom map[string]any) error {
	s.mu.Lock()
	if s.publishErr != nil {
		s.mu.Unlock()
		return s.publishErr
	}
	s.published = append(s.published, published{channelID, text, custom})
	s.mu.Unlock()
	if s.onPublish != nil {
		s.onPublish()
	}
	return nil
}

func (s *fakeSignaler) Subscribe() (chan *proto.MessageEvent, func()) {
	var once sync.Once
	return s.events, func() { once.Do(func() { close(s.events) }) }
}

func (s *fakeSignaler) lastPublished(t *testing.T) published {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		t.Fatal("nothing published")
	}
	return s.published[len(s.published)-1]
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *fakeNotifier) Notify(level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, level+": "+text)
}

func (n *fakeNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.notes {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func newTestOrchestrator(sig *fakeSignaler, media *fakeMediaProvider, notes *fakeNotifier) *Orchestrator {
	return New(sig, media, notes, Peer{ID: "me", Name: "Me"})
}

// deliver pushes an offer into the orchestrator's event stream and waits for
// the dispatch loop to admit or drop it.
func deliver(t *testing.T, o *Orchestrator, sig *fakeSignaler, msg *proto.ChannelMessage) {
	t.Helper()
	sig.events <- &proto.MessageEvent{Type: proto.EventMessageNew, Message: msg}
	deadline := time.After(2 * time.Second)
	for len(sig.events) > 0 {
		select {
		case <-deadline:
			t.Fatal("dispatch loop did not drain the event")
		case <-time.After(time.Millisecond):
		}
	}
	// One more beat so the loop finishes handling the drained event.
	time.Sleep(5 * time.Millisecond)
}

func TestStartVideoCall(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice", Name: "Alice"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	sess := media.only(t)
	if !sess.joined {
		t.Fatal("caller must join the media session before the offer goes out")
	}
	if sess.cameraDisabled {
		t.Fatal("video call must keep the camera on")
	}

	pub := sig.lastPublished(t)
	if pub.channelID != "ch-1" {
		t.Fatalf("offer published on %q", pub.channelID)
	}
	if !strings.Contains(pub.text, "is calling...") {
		t.Fatalf("offer text %q", pub.text)
	}
	if pub.custom[proto.KeyType] != proto.MsgTypeCallNotification {
		t.Fatalf("offer type marker %v", pub.custom[proto.KeyType])
	}
	if pub.custom[proto.KeyCallStatus] != proto.CallStatusCalling {
		t.Fatalf("offer status %v", pub.custom[proto.KeyCallStatus])
	}
	if pub.custom[proto.KeySignalingID] == "" {
		t.Fatal("offer missing signaling id")
	}

	cur := o.Current()
	if cur == nil || cur.Direction != DirectionOutgoing || cur.State != StateOutgoingJoined {
		t.Fatalf("unexpected session: %+v", cur)
	}
	if cur.Peer.ID != "alice" {
		t.Fatalf("unexpected peer: %+v", cur.Peer)
	}
}

func TestStartCallWhileBusyIsSilentlyDropped(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := o.Current().SignalingID

	if err := o.StartVoiceCall(context.Background(), "ch-2", Peer{ID: "bob"}); err != nil {
		t.Fatalf("second start must not error: %v", err)
	}
	cur := o.Current()
	if cur.SignalingID != first || cur.ChannelID != "ch-1" {
		t.Fatalf("second start disturbed the active call: %+v", cur)
	}
	sig.mu.Lock()
	n := len(sig.published)
	sig.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one published offer, got %d", n)
	}
}

func TestStartCallPublishFailureRollsBack(t *testing.T) {
	sig := newFakeSignaler()
	sig.publishErr = errors.New("broker down")
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	err := o.StartVoiceCall(context.Background(), "ch-1", Peer{ID: "alice"})
	if err == nil {
		t.Fatal("expected error when the offer cannot be published")
	}
	if sess := media.only(t); !sess.left {
		t.Fatal("media session must be left when the offer fails")
	}
	if o.Current() != nil {
		t.Fatal("slot must stay empty after a failed start")
	}
	if !notes.contains("call failed") {
		t.Fatalf("expected a call-failed notification, got %v", notes.notes)
	}
}

func TestStartCallJoinFailure(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	media.joinErr = errors.New("ice failure")
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice"}); err == nil {
		t.Fatal("expected join error to surface")
	}
	sig.mu.Lock()
	n := len(sig.published)
	sig.mu.Unlock()
	if n != 0 {
		t.Fatal("no offer may go out when the caller cannot join")
	}
	if o.Current() != nil {
		t.Fatal("slot must stay empty")
	}
	if !notes.contains("call failed") {
		t.Fatalf("expected a call-failed notification, got %v", notes.notes)
	}
	if sess := media.only(t); !sess.left {
		t.Fatal("session must be released when the caller cannot join")
	}
}

func TestIncomingOfferWinsSlotRaceDuringStart(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	// An offer lands while our own start is between join and its final
	// slot write; the incoming side must keep the slot.
	sig.onPublish = func() {
		sig.events <- &proto.MessageEvent{Type: proto.EventMessageNew, Message: offerMessage()}
		deadline := time.Now().Add(2 * time.Second)
		for o.Current() == nil {
			if time.Now().After(deadline) {
				t.Error("offer was not admitted during publish")
				return
			}
			time.Sleep(time.Millisecond)
		}
	}

	if err := o.StartVideoCall(context.Background(), "ch-2", Peer{ID: "bob", Name: "Bob"}); err != nil {
		t.Fatalf("losing a slot race must not error: %v", err)
	}

	cur := o.Current()
	if cur == nil || cur.Direction != DirectionIncoming || cur.SignalingID != "sig-1" {
		t.Fatalf("incoming offer must keep the slot, got %+v", cur)
	}

	outSig, _ := sig.lastPublished(t).custom[proto.KeySignalingID].(string)
	media.mu.Lock()
	out := media.sessions[outSig]
	media.mu.Unlock()
	if out == nil {
		t.Fatalf("no media session for the outgoing attempt %q", outSig)
	}
	out.mu.Lock()
	left := out.left
	out.mu.Unlock()
	if !left {
		t.Fatal("losing side must leave its media session")
	}
}

func TestIncomingOfferPendsWithoutJoining(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	deliver(t, o, sig, offerMessage())

	cur := o.Current()
	if cur == nil || cur.Direction != DirectionIncoming || cur.State != StateIncomingPending {
		t.Fatalf("unexpected session: %+v", cur)
	}
	if cur.SignalingID != "sig-1" || cur.Peer.ID != "alice" {
		t.Fatalf("unexpected session: %+v", cur)
	}
	sess := media.only(t)
	if sess.joined {
		t.Fatal("ringing must not join the media session")
	}
	if !notes.contains("is calling") {
		t.Fatalf("expected a ringing notification, got %v", notes.notes)
	}
}

func TestIncomingOfferPendsWhenMediaFails(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	media.err = errors.New("engine down")
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	deliver(t, o, sig, offerMessage())

	cur := o.Current()
	if cur == nil || cur.State != StateIncomingPending {
		t.Fatalf("offer must pend despite media trouble, got %+v", cur)
	}

	// Media recovers before the user answers.
	media.mu.Lock()
	media.err = nil
	media.mu.Unlock()
	if err := o.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if sess := media.only(t); !sess.joined {
		t.Fatal("answer must join the recreated session")
	}
}

func TestStartCallWithoutMediaProvider(t *testing.T) {
	sig := newFakeSignaler()
	notes := &fakeNotifier{}
	o := New(sig, nil, notes, Peer{ID: "me"})
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice"}); err != nil {
		t.Fatalf("start without media must be a silent no-op: %v", err)
	}
	if o.Current() != nil {
		t.Fatal("slot must stay empty")
	}
	sig.mu.Lock()
	n := len(sig.published)
	sig.mu.Unlock()
	if n != 0 {
		t.Fatal("no offer may go out without a media provider")
	}
}

func TestSecondOfferIgnoredWhileBusy(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	o := newTestOrchestrator(sig, media, &fakeNotifier{})
	defer o.Close()

	deliver(t, o, sig, offerMessage())

	second := offerMessage()
	second.From = "carol"
	second.Custom[proto.KeySignalingID] = "sig-2"
	second.Custom[proto.KeyCallerID] = "carol"
	deliver(t, o, sig, second)

	cur := o.Current()
	if cur.SignalingID != "sig-1" {
		t.Fatalf("busy slot was overwritten: %+v", cur)
	}
}

func TestOwnOfferEchoIgnored(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	o := newTestOrchestrator(sig, media, &fakeNotifier{})
	defer o.Close()

	echo := offerMessage()
	echo.From = "me"
	echo.Custom[proto.KeyCallerID] = "me"
	deliver(t, o, sig, echo)

	if o.Current() != nil {
		t.Fatal("own offer echo must not open an incoming call")
	}
}

func TestAnswerVideoCall(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	deliver(t, o, sig, offerMessage())
	if err := o.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}

	sess := media.only(t)
	if !sess.joined {
		t.Fatal("answer must join the media session")
	}
	if sess.cameraDisabled {
		t.Fatal("video answer must keep the camera on")
	}
	if cur := o.Current(); cur.State != StateConnected {
		t.Fatalf("unexpected state %q", cur.State)
	}
	if !notes.contains("connected") {
		t.Fatalf("expected connected notification, got %v", notes.notes)
	}
}

func TestAnswerVoiceCallDisablesCamera(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	o := newTestOrchestrator(sig, media, &fakeNotifier{})
	defer o.Close()

	voice := offerMessage()
	voice.Custom[proto.KeyCallKind] = proto.CallKindVoice
	deliver(t, o, sig, voice)

	if err := o.Answer(context.Background()); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if sess := media.only(t); !sess.cameraDisabled {
		t.Fatal("voice answer must switch the camera off")
	}
}

func TestAnswerVoiceCallCameraErrorIsSwallowed(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	o := newTestOrchestrator(sig, media, &fakeNotifier{})
	defer o.Close()

	voice := offerMessage()
	voice.Custom[proto.KeyCallKind] = proto.CallKindVoice
	deliver(t, o, sig, voice)

	sess := media.only(t)
	sess.mu.Lock()
	sess.disableErr = errors.New("no track")
	sess.mu.Unlock()

	if err := o.Answer(context.Background()); err != nil {
		t.Fatalf("camera trouble must not fail the answer: %v", err)
	}
	if cur := o.Current(); cur.State != StateConnected {
		t.Fatalf("unexpected state %q", cur.State)
	}
}

func TestAnswerJoinFailureKeepsOfferPending(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	media.joinErr = errors.New("ice failure")
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	deliver(t, o, sig, offerMessage())

	if err := o.Answer(context.Background()); err == nil {
		t.Fatal("expected join failure to surface")
	}
	cur := o.Current()
	if cur == nil || cur.State != StateIncomingPending {
		t.Fatalf("offer must stay pending, got %+v", cur)
	}
	if !notes.contains("could not join") {
		t.Fatalf("expected a join-failure notification, got %v", notes.notes)
	}
}

func TestAnswerWithoutIncomingCall(t *testing.T) {
	sig := newFakeSignaler()
	o := newTestOrchestrator(sig, newFakeMediaProvider(), &fakeNotifier{})
	defer o.Close()

	if err := o.Answer(context.Background()); err == nil {
		t.Fatal("expected error with no incoming call")
	}
}

func TestDeclineClearsSlot(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	deliver(t, o, sig, offerMessage())
	o.Decline(context.Background())

	if o.Current() != nil {
		t.Fatal("decline must clear the slot")
	}
	if !notes.contains("declined call from Alice") {
		t.Fatalf("expected a decline notification, got %v", notes.notes)
	}
	// The slot is free again for the next offer.
	deliver(t, o, sig, offerMessage())
	if o.Current() == nil {
		t.Fatal("slot must be reusable after decline")
	}
}

func TestEndLeavesMediaAndClearsSlot(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	notes := &fakeNotifier{}
	o := newTestOrchestrator(sig, media, notes)
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice", Name: "Alice"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.End(context.Background())

	if o.Current() != nil {
		t.Fatal("end must clear the slot")
	}
	if sess := media.only(t); !sess.left {
		t.Fatal("end must leave the media session")
	}
	if !notes.contains("call with Alice ended") {
		t.Fatalf("expected an ended notification, got %v", notes.notes)
	}
}

func TestEndSwallowsLeaveError(t *testing.T) {
	sig := newFakeSignaler()
	media := newFakeMediaProvider()
	o := newTestOrchestrator(sig, media, &fakeNotifier{})
	defer o.Close()

	if err := o.StartVideoCall(context.Background(), "ch-1", Peer{ID: "alice"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	media.only(t).leaveErr = errors.New("already gone")

	o.End(context.Background())
	if o.Current() != nil {
		t.Fatal("slot must be cleared even when leave fails")
	}
}

func TestEndWhenIdleIsNoOp(t *testing.T) {
	sig := newFakeSignaler()
	o := newTestOrchestrator(sig, newFakeMediaProvider(), &fakeNotifier{})
	defer o.Close()

	o.End(context.Background())
	o.Decline(context.Background())
	if o.Current() != nil {
		t.Fatal("expected idle orchestrator")
	}
}

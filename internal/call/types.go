package call

import (
	"context"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

// Signaler is the only surface the call package needs from the channel
// layer. Both the GossipSub and the AMQP transports satisfy it.
type Signaler interface {
	// Publish sends one chat message on channelID. Custom carries the
	// structured fields the receiving side interprets.
	Publish(ctx context.Context, channelID, text string, custom map[string]any) error
	// Subscribe delivers a message.new event for every message on every
	// channel the local session is a member of, own sends included.
	Subscribe() (ch chan *proto.MessageEvent, cancel func())
}

// MediaProvider hands out media sessions addressed by signaling ID.
// Get-or-create semantics: both sides of a call resolve the same session
// from the ID carried in the invitation.
type MediaProvider interface {
	GetOrCreate(ctx context.Context, signalingID string, members []string) (MediaSession, error)
}

// MediaSession is one call's audio/video transport handle. No return
// contract beyond success/error is relied upon.
type MediaSession interface {
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	DisableCamera(ctx context.Context) error
}

// Notifier surfaces user-visible call outcomes.
type Notifier interface {
	Notify(level, text string)
}

// Kind of call.
type Kind string

const (
	KindVideo Kind = proto.CallKindVideo
	KindVoice Kind = proto.CallKindVoice
)

// Direction of the active call relative to the local user.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// State of the active call. This tracks local join intent only; confirmed
// bidirectional media flow is reported by the media provider's own
// connection-state signal, which this package does not model.
type State string

const (
	StateOutgoingJoined  State = "outgoing_joined"
	StateIncomingPending State = "incoming_pending"
	StateConnected       State = "connected"
	StateEnded           State = "ended"
)

// Peer is the call counterpart's identity and display metadata. Symmetric:
// the caller side stores the callee's info and vice versa.
type Peer struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Session is the single in-flight call.
type Session struct {
	Kind        Kind      `json:"kind"`
	Direction   Direction `json:"direction"`
	Peer        Peer      `json:"peer"`
	SignalingID string    `json:"signaling_id"`
	ChannelID   string    `json:"channel_id"`
	State       State     `json:"state"`

	media MediaSession
}

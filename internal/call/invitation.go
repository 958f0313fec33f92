package call

import (
	"strings"

	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

// Invitation is a decoded call offer received on a chat channel.
type Invitation struct {
	Kind        Kind
	SignalingID string
	ChannelID   string
	Caller      Peer
}

// BuildInvitation assembles the text and custom fields for a call offer
// message. The text body stays human-readable so clients without call
// support render it as a regular chat line; it also doubles as part of
// the matching contract on the receiving side.
func BuildInvitation(kind Kind, signalingID, channelID string, caller Peer) (text string, custom map[string]any) {
	text = caller.Name + " " + proto.CallingText
	custom = map[string]any{
		proto.KeyType:         proto.MsgTypeCallNotification,
		proto.KeyCallKind:     string(kind),
		proto.KeyCallStatus:   proto.CallStatusCalling,
		proto.KeySignalingID:  signalingID,
		proto.KeyCallerID:     caller.ID,
		proto.KeyCallerName:   caller.Name,
		proto.KeyCallerAvatar: caller.Avatar,
		proto.KeyChannelID:    channelID,
	}
	return text, custom
}

// DecodeInvitation inspects an incoming message and returns the call offer
// it carries, if any. A message is an offer only when all four hold: the
// type marker is call_notification, the status is calling, the caller is
// not selfID, and the text contains "is calling...". The payload travels
// through a schemaless chat transport, so the text check is a fallback
// against corrupted custom fields. Anything failing a check is simply not
// an offer: ok is false, never an error.
func DecodeInvitation(msg *proto.ChannelMessage, selfID string) (inv Invitation, ok bool) {
	if msg == nil || msg.Custom == nil {
		return inv, false
	}
	if str(msg.Custom[proto.KeyType]) != proto.MsgTypeCallNotification {
		return inv, false
	}
	if str(msg.Custom[proto.KeyCallStatus]) != proto.CallStatusCalling {
		return inv, false
	}
	caller := str(msg.Custom[proto.KeyCallerID])
	if caller == "" {
		caller = msg.From
	}
	if caller == "" || caller == selfID {
		return inv, false
	}
	if !strings.Contains(msg.Text, proto.CallingText) {
		return inv, false
	}

	// Anything but an explicit voice marker is treated as video; the kind
	// only decides whether the camera is switched off after answering.
	kind := KindVideo
	if str(msg.Custom[proto.KeyCallKind]) == proto.CallKindVoice {
		kind = KindVoice
	}

	inv = Invitation{
		Kind:        kind,
		SignalingID: str(msg.Custom[proto.KeySignalingID]),
		ChannelID:   str(msg.Custom[proto.KeyChannelID]),
		Caller: Peer{
			ID:     caller,
			Name:   str(msg.Custom[proto.KeyCallerName]),
			Avatar: str(msg.Custom[proto.KeyCallerAvatar]),
		},
	}
	if inv.ChannelID == "" {
		inv.ChannelID = msg.Channel
	}
	return inv, true
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// Package proto holds the wire-format constants and types shared by the
// channel transports and the layers that interpret channel traffic.
package proto

import "time"

const (
	// GossipSub topic prefix for conversation channels. The channel ID is
	// appended verbatim: cc.channel.<id>.
	ChannelTopicPrefix = "cc.channel."

	MdnsTag = "cc-mdns"

	// Marker carried in a chat message's custom fields that tags it as a
	// call invitation. The transport enforces no schema, so receivers must
	// validate the remaining fields themselves.
	MsgTypeCallNotification = "call_notification"

	CallStatusCalling = "calling"

	CallKindVideo = "video"
	CallKindVoice = "voice"

	// Literal substring required in an invitation's human-readable text.
	// Redundant with the custom fields on purpose: the payload travels
	// through a schemaless chat transport, and the text check is the
	// fallback against corrupted custom fields.
	CallingText = "is calling..."
)

const (
	// EventMessageNew is delivered to channel subscribers for every message
	// on every channel the local session is a member of, own sends included.
	EventMessageNew = "message.new"
)

// Custom-field keys of a call-invitation message.
const (
	KeyType         = "type"
	KeyCallKind     = "call_kind"
	KeyCallStatus   = "call_status"
	KeySignalingID  = "signaling_id"
	KeyCallerID     = "caller_id"
	KeyCallerName   = "caller_name"
	KeyCallerAvatar = "caller_avatar"
	KeyChannelID    = "channel_id"
)

// ChannelMessage is the JSON wire format for one chat message on a
// conversation channel. Custom carries structured fields that higher layers
// interpret; ordinary chat messages leave it empty.
type ChannelMessage struct {
	ID      string         `json:"id"`
	Channel string         `json:"channel"`
	From    string         `json:"from"`
	Text    string         `json:"text"`
	Custom  map[string]any `json:"custom,omitempty"`
	TS      int64          `json:"ts"`
}

// MessageEvent is what channel subscribers receive.
type MessageEvent struct {
	Type    string          `json:"type"` // message.new
	Message *ChannelMessage `json:"message"`
}

func NowMillis() int64 { return time.Now().UnixMilli() }

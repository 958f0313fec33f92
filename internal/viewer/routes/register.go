package routes

import (
	"context"
	"net/http"

	"github.com/duythong28/connect-career-fe-sub001/internal/assistant"
	"github.com/duythong28/connect-career-fe-sub001/internal/call"
	"github.com/duythong28/connect-career-fe-sub001/internal/chatbox"
	"github.com/duythong28/connect-career-fe-sub001/internal/notify"
	"github.com/duythong28/connect-career-fe-sub001/internal/proto"
)

// Channels is the transport surface the routes need. Both the GossipSub
// and the AMQP backends satisfy it.
type Channels interface {
	JoinChannel(channelID string) error
	LeaveChannel(channelID string)
	Publish(ctx context.Context, channelID, text string, custom map[string]any) error
	Subscribe() (chan *proto.MessageEvent, func())
	Joined() []string
}

type Deps struct {
	SelfID    string
	SelfLabel func() string

	Channels  Channels
	Registry  *chatbox.Registry
	Calls     *call.Orchestrator
	Assistant *assistant.Client
	Notify    *notify.Center

	CfgPath string
}

func Register(mux *http.ServeMux, d Deps) {
	registerChatboxRoutes(mux, d)
	registerCallRoutes(mux, d)
	registerAssistantRoutes(mux, d)
	registerEventRoutes(mux, d)

	handleGet(mux, "/api/self", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"id":   d.SelfID,
			"name": safeCall(d.SelfLabel),
		})
	})
}

func safeCall(fn func() string) string {
	if fn == nil {
		return ""
	}
	return fn()
}

// Package app wires the transports, the call orchestrator, the chat window
// registry and the HTTP viewer into one running client.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/duythong28/connect-career-fe-sub001/internal/assistant"
	"github.com/duythong28/connect-career-fe-sub001/internal/call"
	"github.com/duythong28/connect-career-fe-sub001/internal/chatbox"
	"github.com/duythong28/connect-career-fe-sub001/internal/config"
	"github.com/duythong28/connect-career-fe-sub001/internal/media"
	"github.com/duythong28/connect-career-fe-sub001/internal/mq"
	"github.com/duythong28/connect-career-fe-sub001/internal/notify"
	"github.com/duythong28/connect-career-fe-sub001/internal/p2p"
	"github.com/duythong28/connect-career-fe-sub001/internal/viewer"
	"github.com/duythong28/connect-career-fe-sub001/internal/viewer/routes"
)

// Options configure a client instance.
type Options struct {
	// Dir is the client's data directory; relative config paths resolve
	// against it.
	Dir     string
	CfgPath string
	Cfg     config.Config
}

// backend is the channel transport surface the app wires up. Satisfied by
// both the GossipSub and the AMQP transports.
type backend interface {
	routes.Channels
	ID() string
}

// Run starts the client and blocks until ctx is canceled.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Cfg
	center := notify.NewCenter(64)
	defer center.Close()

	channels, closeChannels, err := openBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer closeChannels()

	selfID := channels.ID()
	if cfg.Profile.UserID == "" {
		cfg.Profile.UserID = selfID
	}
	log.Printf("APP: identity %s (%s)", cfg.Profile.Name, selfID)

	var orch *call.Orchestrator
	if cfg.Call.Enabled {
		provider, err := media.NewProvider(selfID, cfg.Call.STUNServers)
		if err != nil {
			return fmt.Errorf("media provider: %w", err)
		}
		defer provider.Close()

		orch = call.New(channels, mediaAdapter{provider}, center, call.Peer{
			ID:     selfID,
			Name:   cfg.Profile.Name,
			Avatar: cfg.Profile.Avatar,
		})
		defer orch.Close()
	}

	registry := chatbox.NewRegistry()
	defer registry.Shutdown()

	// Release channel subscriptions for windows the registry lets go of.
	boxEvents := registry.Subscribe()
	defer registry.Unsubscribe(boxEvents)
	go func() {
		for evt := range boxEvents {
			if evt.Type == chatbox.EventEvicted || evt.Type == chatbox.EventClosed {
				channels.LeaveChannel(evt.ID)
			}
		}
	}()

	var assistantClient *assistant.Client
	if cfg.Assistant.BaseURL != "" {
		assistantClient = assistant.NewClient(cfg.Assistant.BaseURL)
	}

	srv, err := viewer.Start(ctx, cfg.Viewer.HTTPAddr, routes.Deps{
		SelfID:    selfID,
		SelfLabel: func() string { return cfg.Profile.Name },
		Channels:  channels,
		Registry:  registry,
		Calls:     orch,
		Assistant: assistantClient,
		Notify:    center,
		CfgPath:   opts.CfgPath,
	})
	if err != nil {
		return fmt.Errorf("start viewer: %w", err)
	}
	defer srv.Close()

	<-ctx.Done()
	log.Printf("APP: shutting down")
	return nil
}

// openBackend brings up the configured channel transport.
func openBackend(ctx context.Context, opts Options) (backend, func(), error) {
	cfg := opts.Cfg
	switch cfg.Channel.Backend {
	case "amqp":
		m, err := mq.Dial(ctx, mq.Options{
			URL:      cfg.Channel.AmqpURL,
			Exchange: cfg.Channel.AmqpExchange,
			Queue:    cfg.Channel.AmqpQueue,
			Retries:  cfg.Channel.AmqpRetries,
			SelfID:   cfg.Profile.UserID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("amqp backend: %w", err)
		}
		return m, m.Close, nil
	default:
		keyFile := cfg.Identity.KeyFile
		if !filepath.IsAbs(keyFile) {
			keyFile = filepath.Join(opts.Dir, keyFile)
		}
		node, err := p2p.New(ctx, cfg.Channel.ListenPort, keyFile, cfg.Channel.MdnsTag, cfg.Channel.TopicPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub backend: %w", err)
		}
		ch := p2p.NewChannels(node)
		closeAll := func() {
			ch.Close()
			_ = node.Close()
		}
		return ch, closeAll, nil
	}
}

// mediaAdapter narrows the concrete provider to the orchestrator's view.
type mediaAdapter struct {
	p *media.Provider
}

func (a mediaAdapter) GetOrCreate(ctx context.Context, signalingID string, members []string) (call.MediaSession, error) {
	return a.p.GetOrCreate(ctx, signalingID, members)
}

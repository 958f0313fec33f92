// Package media manages WebRTC sessions for calls using Pion. It imports
// only Pion libraries and stdlib; coupling to the rest of the app is via
// the call package's MediaSession interface.
package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Provider hands out sessions keyed by signaling ID. Both sides of a call
// resolve the same ID to the same logical session.
type Provider struct {
	api  *webrtc.API
	cfg  webrtc.Configuration
	self string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewProvider builds a Pion API with the default codecs and interceptors
// and the given STUN/TURN servers.
func NewProvider(selfID string, iceServers []string) (*Provider, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(reg))

	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	return &Provider{
		api:      api,
		cfg:      cfg,
		self:     selfID,
		sessions: make(map[string]*Session),
	}, nil
}

// GetOrCreate returns the session for signalingID, creating it on first
// use. Members records who the session is for; it does not gate access.
func (p *Provider) GetOrCreate(ctx context.Context, signalingID string, members []string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[signalingID]; ok {
		return s, nil
	}
	s := &Session{
		id:       signalingID,
		members:  append([]string(nil), members...),
		provider: p,
	}
	p.sessions[signalingID] = s
	return s, nil
}

// Active returns the IDs of the sessions currently held.
func (p *Provider) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		out = append(out, id)
	}
	return out
}

func (p *Provider) remove(signalingID string) {
	p.mu.Lock()
	delete(p.sessions, signalingID)
	p.mu.Unlock()
}

// Close tears down every session.
func (p *Provider) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// Session is one call's peer connection.
type Session struct {
	id       string
	members  []string
	provider *Provider

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	videoTx *webrtc.RTPTransceiver
	audioTx *webrtc.RTPTransceiver
}

// Join brings up the peer connection with bidirectional audio and video
// lanes and publishes the local offer. Joining twice is a no-op.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc != nil {
		return nil
	}

	pc, err := s.provider.api.NewPeerConnection(s.provider.cfg)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	audioTx, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("add audio transceiver: %w", err)
	}
	videoTx, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("CALL [%s]: connection state %s", s.id, state)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}

	s.pc = pc
	s.audioTx = audioTx
	s.videoTx = videoTx
	log.Printf("CALL [%s]: joined media session", s.id)
	return nil
}

// DisableCamera stops the outgoing video sender. The audio lane is
// untouched. No-op before Join.
func (s *Session) DisableCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoTx == nil {
		return nil
	}
	sender := s.videoTx.Sender()
	if sender == nil {
		return nil
	}
	if err := sender.Stop(); err != nil {
		return fmt.Errorf("stop video sender: %w", err)
	}
	log.Printf("CALL [%s]: camera disabled", s.id)
	return nil
}

// Leave closes the peer connection and releases the session from the
// provider. Safe to call without a prior Join.
func (s *Session) Leave(ctx context.Context) error {
	s.provider.remove(s.id)
	return s.close()
}

func (s *Session) close() error {
	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.audioTx = nil
	s.videoTx = nil
	s.mu.Unlock()

	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	log.Printf("CALL [%s]: left media session", s.id)
	return nil
}

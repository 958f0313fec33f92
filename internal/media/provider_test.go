package media

import (
	"context"
	"testing"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	p, err := NewProvider("me", nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	a, err := p.GetOrCreate(context.Background(), "sig-1", []string{"me", "alice"})
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	b, err := p.GetOrCreate(context.Background(), "sig-1", nil)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if a != b {
		t.Fatal("same signaling id must resolve to the same session")
	}
	if n := len(p.Active()); n != 1 {
		t.Fatalf("expected one active session, got %d", n)
	}
}

func TestLeaveWithoutJoin(t *testing.T) {
	p, err := NewProvider("me", []string{"stun:stun.l.google.com:19302"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	s, _ := p.GetOrCreate(context.Background(), "sig-1", nil)
	if err := s.Leave(context.Background()); err != nil {
		t.Fatalf("leave before join: %v", err)
	}
	if n := len(p.Active()); n != 0 {
		t.Fatalf("session not released, %d active", n)
	}
}

func TestDisableCameraBeforeJoin(t *testing.T) {
	p, err := NewProvider("me", nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer p.Close()

	s, _ := p.GetOrCreate(context.Background(), "sig-1", nil)
	if err := s.DisableCamera(context.Background()); err != nil {
		t.Fatalf("disable camera before join: %v", err)
	}
}

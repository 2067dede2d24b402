package session

import (
	"context"
	"testing"
)

func TestHubRegisterDisconnect(t *testing.T) {
	h := NewConnectionHub()

	ctx1, done1 := h.Track(context.Background(), "alice")
	ctx2, done2 := h.Track(context.Background(), "alice")
	ctx3, done3 := h.Track(context.Background(), "bob")
	defer done1()
	defer done2()
	defer done3()

	if n := h.Connected("alice"); n != 2 {
		t.Fatalf("expected 2 alice streams, got %d", n)
	}

	if n := h.Disconnect("alice"); n != 2 {
		t.Fatalf("expected 2 streams cancelled, got %d", n)
	}
	for _, ctx := range []context.Context{ctx1, ctx2} {
		if ctx.Err() == nil {
			t.Fatal("expected alice stream to be cancelled")
		}
		if !Ended(ctx) {
			t.Fatalf("unexpected cause %v", context.Cause(ctx))
		}
	}
	if ctx3.Err() != nil {
		t.Fatal("bob's stream must stay open")
	}
}

func TestHubUnregisterRemovesUser(t *testing.T) {
	h := NewConnectionHub()
	id := h.Register("alice", func(error) {})
	h.Unregister("alice", id)

	h.mu.RLock()
	_, ok := h.streams["alice"]
	h.mu.RUnlock()
	if ok {
		t.Fatal("expected user to be removed after last stream unregisters")
	}
	if n := h.Disconnect("alice"); n != 0 {
		t.Fatalf("expected nothing to disconnect, got %d", n)
	}
}

func TestHubTrackDoneCancelsWithoutCause(t *testing.T) {
	h := NewConnectionHub()
	ctx, done := h.Track(context.Background(), "alice")
	done()
	if ctx.Err() == nil {
		t.Fatal("expected context cancelled after done")
	}
	if Ended(ctx) {
		t.Fatal("normal completion must not look like a sign-out")
	}
	if h.Connected("alice") != 0 {
		t.Fatal("expected stream unregistered")
	}
}

func TestEndedSeesCauseThroughChildContexts(t *testing.T) {
	h := NewConnectionHub()
	parent, done := h.Track(context.Background(), "alice")
	defer done()
	child, cancel := context.WithCancel(parent)
	defer cancel()

	h.Disconnect("alice")
	<-child.Done()
	if !Ended(child) {
		t.Fatalf("expected child to report the sign-out, got %v", context.Cause(child))
	}
}

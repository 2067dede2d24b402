package inbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/conversation"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func peers(list []data.RecentMessageSummary) string {
	var ids []string
	for _, s := range list {
		ids = append(ids, s.PeerID)
	}
	return strings.Join(ids, ",")
}

func TestApply(t *testing.T) {
	var held []data.RecentMessageSummary
	held = Apply(held, data.RecentMessageSummary{PeerID: "B", Text: "1"})
	held = Apply(held, data.RecentMessageSummary{PeerID: "C", Text: "2"})
	before := peers(held)
	next := Apply(held, data.RecentMessageSummary{PeerID: "B", Text: "3"})

	if peers(next) != "B,C" || next[0].Text != "3" {
		t.Fatalf("unexpected list %+v", next)
	}
	if peers(held) != before {
		t.Fatal("Apply must not modify its input")
	}
}

func TestProjectionMostRecentFirst(t *testing.T) {
	docs := docstore.NewMemory()
	ctx := context.Background()
	base := time.Unix(1000, 0)
	i := 0
	store := conversation.New(docs, nil, conversation.Options{Clock: func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}})

	for _, send := range []struct{ to, text string }{{"B", "b1"}, {"C", "c1"}, {"B", "b2"}} {
		if err := store.SendMessage(ctx, "A", send.to, send.text); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	p, err := Open(ctx, docs, "A")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	waitFor(t, "replay", func() bool { return peers(p.Summaries()) == "B,C" })
	if got := p.Summaries()[0].Text; got != "b2" {
		t.Fatalf("expected latest text b2, got %q", got)
	}

	if err := store.SendMessage(ctx, "A", "C", "c2"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	waitFor(t, "live update", func() bool {
		s := p.Summaries()
		return peers(s) == "C,B" && s[0].Text == "c2"
	})
}

func TestProjectionHiThere(t *testing.T) {
	docs := docstore.NewMemory()
	ctx := context.Background()
	times := []int64{100, 200}
	n := 0
	store := conversation.New(docs, nil, conversation.Options{Clock: func() time.Time {
		ts := time.Unix(times[n], 0)
		n++
		return ts
	}})

	p, err := Open(ctx, docs, "A")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	if err := store.SendMessage(ctx, "A", "B", "hi"); err != nil {
		t.Fatalf("send hi: %v", err)
	}
	if err := store.SendMessage(ctx, "A", "B", "there"); err != nil {
		t.Fatalf("send there: %v", err)
	}

	waitFor(t, "there", func() bool {
		s := p.Summaries()
		return len(s) == 1 && s[0].Text == "there"
	})
	s := p.Summaries()[0]
	if s.PeerID != "B" || !s.SentAt.Equal(time.Unix(200, 0)) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestProjectionSkipsMalformed(t *testing.T) {
	docs := docstore.NewMemory()
	ctx := context.Background()

	p, err := Open(ctx, docs, "A")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer p.Close()

	// Missing text.
	if err := docs.Set(ctx, data.RecentCollection("A"), "X", docstore.Fields{data.FieldTimestamp: time.Unix(50, 0)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	waitFor(t, "status", func() bool {
		return strings.HasPrefix(p.Status().Get(), "Failed to decode recent message: ")
	})

	good := data.RecentMessageSummary{OwnerID: "A", PeerID: "B", Text: "ok", SentAt: time.Unix(60, 0)}
	if err := docs.Set(ctx, data.RecentCollection("A"), "B", data.SummaryFields(good)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	waitFor(t, "valid summary after malformed one", func() bool { return peers(p.Summaries()) == "B" })
}

func TestProjectionSnapshotsAndClose(t *testing.T) {
	docs := docstore.NewMemory()
	ctx := context.Background()

	p, err := Open(ctx, docs, "A")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ch, cancel := p.Snapshots().Watch()
	defer cancel()
	if first := <-ch; len(first) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first)
	}

	s := data.RecentMessageSummary{OwnerID: "A", PeerID: "B", Text: "x", SentAt: time.Unix(1, 0)}
	if err := docs.Set(ctx, data.RecentCollection("A"), "B", data.SummaryFields(s)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	select {
	case snap := <-ch:
		if peers(snap) != "B" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	p.Close()
	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
	if docs.Listeners(data.RecentCollection("A")) != 0 {
		t.Fatal("listener should be unregistered")
	}
}

// Package inbox keeps the live "recent conversations" list of one user,
// most recently active peer first.
package inbox

import (
	"context"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/observe"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("inbox")

// SummaryStream yields an owner's summaries as the document store delivers
// them: replay in timestamp order, then every later upsert. Payloads that do
// not decode are reported through onBadPayload and skipped.
type SummaryStream struct {
	sub       *docstore.Subscription
	summaries chan data.RecentMessageSummary
	quit      chan struct{}
	quitOnce  sync.Once
	done      chan struct{}
}

// StreamRecentSummaries subscribes to ownerID's summaries.
func StreamRecentSummaries(ctx context.Context, docs docstore.Store, ownerID string, onBadPayload func(error)) (*SummaryStream, error) {
	sub, err := docs.Listen(ctx, data.RecentCollection(ownerID), data.FieldTimestamp)
	if err != nil {
		return nil, err
	}
	ss := &SummaryStream{
		sub:       sub,
		summaries: make(chan data.RecentMessageSummary),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go ss.run(ctx, onBadPayload)
	return ss, nil
}

func (ss *SummaryStream) run(ctx context.Context, onBadPayload func(error)) {
	defer close(ss.done)
	defer close(ss.summaries)
	for c := range ss.sub.Changes() {
		s, err := data.DecodeSummary(c.Doc)
		if err != nil {
			log.Errorf("skipping recent message: %v", err)
			if onBadPayload != nil {
				onBadPayload(err)
			}
			continue
		}
		select {
		case ss.summaries <- s:
		case <-ss.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Summaries returns the delivery channel. It closes when the stream ends.
func (ss *SummaryStream) Summaries() <-chan data.RecentMessageSummary { return ss.summaries }

// Err reports why the underlying subscription ended.
func (ss *SummaryStream) Err() error { return ss.sub.Err() }

// Close unsubscribes and waits for the stream to wind down.
func (ss *SummaryStream) Close() {
	ss.quitOnce.Do(func() { close(ss.quit) })
	ss.sub.Close()
	<-ss.done
}

// Apply moves s to the front of held, dropping any older entry for the same
// peer. held is not modified.
func Apply(held []data.RecentMessageSummary, s data.RecentMessageSummary) []data.RecentMessageSummary {
	out := make([]data.RecentMessageSummary, 0, len(held)+1)
	out = append(out, s)
	for _, h := range held {
		if h.PeerID != s.PeerID {
			out = append(out, h)
		}
	}
	return out
}

// Projection is the held inbox list. Only its own goroutine mutates the
// list; readers get immutable snapshots.
type Projection struct {
	stream    *SummaryStream
	snapshots *observe.Value[[]data.RecentMessageSummary]
	status    *observe.Value[string]
	done      chan struct{}
}

// Open starts projecting ownerID's summaries.
func Open(ctx context.Context, docs docstore.Store, ownerID string) (*Projection, error) {
	p := &Projection{
		snapshots: observe.NewValue([]data.RecentMessageSummary{}),
		status:    observe.NewValue(""),
		done:      make(chan struct{}),
	}
	stream, err := StreamRecentSummaries(ctx, docs, ownerID, func(err error) {
		p.status.Set("Failed to decode recent message: " + err.Error())
	})
	if err != nil {
		return nil, err
	}
	p.stream = stream
	go p.run()
	return p, nil
}

func (p *Projection) run() {
	defer close(p.done)
	var held []data.RecentMessageSummary
	for s := range p.stream.Summaries() {
		held = Apply(held, s)
		p.snapshots.Set(held)
	}
	if err := p.stream.Err(); err != nil {
		p.status.Set("Failed to listen for recent messages: " + err.Error())
	}
}

// Summaries returns a copy of the current list.
func (p *Projection) Summaries() []data.RecentMessageSummary {
	cur := p.snapshots.Get()
	out := make([]data.RecentMessageSummary, len(cur))
	copy(out, cur)
	return out
}

// Snapshots publishes every new list. Values must not be modified.
func (p *Projection) Snapshots() *observe.Value[[]data.RecentMessageSummary] { return p.snapshots }

// Status holds the last failure text.
func (p *Projection) Status() *observe.Value[string] { return p.status }

// Done is closed once the projection stops updating.
func (p *Projection) Done() <-chan struct{} { return p.done }

// Close unsubscribes.
func (p *Projection) Close() {
	p.stream.Close()
	<-p.done
}

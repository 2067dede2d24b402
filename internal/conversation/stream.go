package conversation

import (
	"context"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
)

// MessageStream yields one participant's view of a thread: the stored
// history in timestamp order, then live appends. Messages are passed on in
// the order the document store delivers them.
type MessageStream struct {
	ctx      context.Context
	sub      *docstore.Subscription
	messages chan data.Message
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// StreamConversation subscribes to userID's copy of the thread with peerID.
// A new call replays the history again.
func (s *Store) StreamConversation(ctx context.Context, userID, peerID string) (*MessageStream, error) {
	sub, err := s.docs.Listen(ctx, data.MessagesCollection(userID, peerID), data.FieldTimestamp)
	if err != nil {
		return nil, err
	}
	ms := &MessageStream{
		ctx:      ctx,
		sub:      sub,
		messages: make(chan data.Message),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go ms.run()
	return ms, nil
}

func (ms *MessageStream) run() {
	defer close(ms.done)
	defer close(ms.messages)

	seen := make(map[string]bool)
	for c := range ms.sub.Changes() {
		// Messages are never edited; anything already delivered is a repeat.
		if seen[c.Doc.ID] {
			continue
		}
		m, err := data.DecodeMessage(c.Doc)
		if err != nil {
			log.Errorf("skipping message: %v", err)
			continue
		}
		seen[c.Doc.ID] = true
		select {
		case ms.messages <- m:
		case <-ms.quit:
			return
		case <-ms.ctx.Done():
			return
		}
	}
	ms.mu.Lock()
	ms.err = ms.sub.Err()
	ms.mu.Unlock()
}

// Messages returns the delivery channel. It closes when the stream ends.
func (ms *MessageStream) Messages() <-chan data.Message { return ms.messages }

// Close unsubscribes and waits for the stream to wind down.
func (ms *MessageStream) Close() {
	ms.quitOnce.Do(func() { close(ms.quit) })
	ms.sub.Close()
	<-ms.done
}

// Err reports why the stream ended, if it was not closed or cancelled.
func (ms *MessageStream) Err() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.err
}

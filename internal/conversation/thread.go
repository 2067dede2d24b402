package conversation

import (
	"context"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/observe"
)

// Thread is the state behind one open chat: the outgoing text buffer, the
// messages received so far and a status line. It owns a MessageStream until
// Close.
type Thread struct {
	store  *Store
	userID string
	peer   data.User
	stream *MessageStream

	text     *observe.Value[string]
	messages *observe.Value[[]data.Message]
	count    *observe.Value[int]
	status   *observe.Value[string]

	sends sync.WaitGroup
	done  chan struct{}
}

// OpenThread starts streaming userID's view of the thread with peer.
func (s *Store) OpenThread(ctx context.Context, userID string, peer data.User) (*Thread, error) {
	stream, err := s.StreamConversation(ctx, userID, peer.ID)
	if err != nil {
		return nil, err
	}
	t := &Thread{
		store:    s,
		userID:   userID,
		peer:     peer,
		stream:   stream,
		text:     observe.NewValue(""),
		messages: observe.NewValue([]data.Message(nil)),
		count:    observe.NewValue(0),
		status:   observe.NewValue(""),
		done:     make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *Thread) run() {
	defer close(t.done)
	var held []data.Message
	for m := range t.stream.Messages() {
		held = append(held, m)
		snapshot := make([]data.Message, len(held))
		copy(snapshot, held)
		t.messages.Set(snapshot)
		// Count is the scroll trigger: bumped once per delivered message.
		t.count.Set(len(held))
	}
	if err := t.stream.Err(); err != nil {
		t.status.Set("Failed to listen for messages: " + err.Error())
	}
}

// Peer is the other participant.
func (t *Thread) Peer() data.User { return t.peer }

// SetText replaces the outgoing buffer.
func (t *Thread) SetText(s string) { t.text.Set(s) }

// Text returns the outgoing buffer.
func (t *Thread) Text() string { return t.text.Get() }

// TextValue is the observable outgoing buffer.
func (t *Thread) TextValue() *observe.Value[string] { return t.text }

// Messages holds the delivered messages in arrival order.
func (t *Thread) Messages() *observe.Value[[]data.Message] { return t.messages }

// Count is bumped every time a message is delivered.
func (t *Thread) Count() *observe.Value[int] { return t.count }

// Status holds the last failure text.
func (t *Thread) Status() *observe.Value[string] { return t.status }

// Send issues the buffered text and clears the buffer straight away, without
// waiting for the writes. A failed write shows up in Status.
func (t *Thread) Send(ctx context.Context) {
	text := t.text.Get()
	t.text.Set("")

	// Stamped here so sends keep call order even though they complete
	// concurrently.
	sentAt := t.store.stamp()
	ctx = context.WithoutCancel(ctx)

	t.sends.Add(1)
	go func() {
		defer t.sends.Done()
		if err := t.store.send(ctx, t.userID, t.peer, text, sentAt); err != nil {
			t.status.Set("Failed to save message: " + err.Error())
		}
	}()
}

// Flush waits for sends issued so far to complete.
func (t *Thread) Flush() { t.sends.Wait() }

// Close unsubscribes. Sends already issued still complete.
func (t *Thread) Close() {
	t.stream.Close()
	<-t.done
}

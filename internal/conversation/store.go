// Package conversation writes and streams the messages of two-party threads.
//
// Every message is stored twice, once under each participant's view of the
// thread (messages/{a}/{b} and messages/{b}/{a}), and the sender's inbox
// summary for the peer is replaced. The three writes are independent: one
// can fail while the others land, and nothing here repairs the divergence
// unless Options.Retry is set.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("conversation")

// PeerLookup resolves the display fields copied into inbox summaries.
type PeerLookup interface {
	GetUser(ctx context.Context, uid string) (data.User, error)
}

// Options tune a Store. The zero value keeps the plain dual-write.
type Options struct {
	// Clock stamps sentAt. Defaults to time.Now.
	Clock func() time.Time

	// MirrorRecipientSummary also replaces the recipient's summary for the
	// sender, so the recipient's inbox shows incoming messages.
	MirrorRecipientSummary bool

	// Retry is the number of extra attempts per write, with exponential
	// backoff. Retried message copies are written under a pre-assigned ID so
	// a retry never duplicates a message.
	Retry uint64
}

// Store is the conversation collaborator facade.
type Store struct {
	docs  docstore.Store
	peers PeerLookup
	opts  Options

	mu   sync.Mutex
	last time.Time
}

// New returns a Store writing to docs. peers may be nil, in which case
// summaries carry only the peer id.
func New(docs docstore.Store, peers PeerLookup, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{docs: docs, peers: peers, opts: opts}
}

// stamp returns the send time. Times never go backwards within a Store so
// thread order follows call order.
func (s *Store) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Clock().UTC()
	if !now.After(s.last) && !s.last.IsZero() {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

// SendMessage stores text from fromID to toID and replaces fromID's inbox
// summary for toID. Empty text is accepted.
func (s *Store) SendMessage(ctx context.Context, fromID, toID, text string) error {
	_, err := s.Deliver(ctx, fromID, toID, text)
	return err
}

// Deliver is SendMessage returning the message as stored. The message is
// returned even on failure since some copies may have landed.
func (s *Store) Deliver(ctx context.Context, fromID, toID, text string) (data.Message, error) {
	sentAt := s.stamp()
	msg := data.Message{SenderID: fromID, RecipientID: toID, Text: text, SentAt: sentAt}
	return msg, s.send(ctx, fromID, s.lookupPeer(ctx, toID), text, sentAt)
}

// SendMessageTo is SendMessage with the peer profile already known.
func (s *Store) SendMessageTo(ctx context.Context, fromID string, peer data.User, text string) error {
	return s.send(ctx, fromID, peer, text, s.stamp())
}

func (s *Store) lookupPeer(ctx context.Context, uid string) data.User {
	if s.peers == nil {
		return data.User{ID: uid}
	}
	u, err := s.peers.GetUser(ctx, uid)
	if err != nil {
		log.Warningf("no profile for %s, summary will lack display fields: %v", uid, err)
		return data.User{ID: uid}
	}
	return u
}

func (s *Store) send(ctx context.Context, fromID string, peer data.User, text string, sentAt time.Time) error {
	toID := peer.ID
	msg := data.Message{SenderID: fromID, RecipientID: toID, Text: text, SentAt: sentAt}
	fields := data.MessageFields(msg)

	var messageID string
	if s.opts.Retry > 0 {
		messageID = uuid.NewString()
	}

	var g multierror.Group
	g.Go(func() error {
		return s.writeMessage(ctx, data.MessagesCollection(fromID, toID), messageID, fields)
	})
	g.Go(func() error {
		return s.writeMessage(ctx, data.MessagesCollection(toID, fromID), messageID, fields)
	})
	g.Go(func() error {
		summary := data.RecentMessageSummary{
			OwnerID:       fromID,
			PeerID:        toID,
			Text:          text,
			PeerEmail:     peer.Email,
			PeerAvatarURL: peer.AvatarURL,
			SentAt:        sentAt,
		}
		return s.retry(ctx, func() error {
			return s.docs.Set(ctx, data.RecentCollection(fromID), toID, data.SummaryFields(summary))
		})
	})
	if s.opts.MirrorRecipientSummary {
		g.Go(func() error {
			sender := s.lookupPeer(ctx, fromID)
			summary := data.RecentMessageSummary{
				OwnerID:       toID,
				PeerID:        fromID,
				Text:          text,
				PeerEmail:     sender.Email,
				PeerAvatarURL: sender.AvatarURL,
				SentAt:        sentAt,
			}
			return s.retry(ctx, func() error {
				return s.docs.Set(ctx, data.RecentCollection(toID), fromID, data.SummaryFields(summary))
			})
		})
	}

	if err := g.Wait().ErrorOrNil(); err != nil {
		log.Errorf("send %s -> %s: %v", fromID, toID, err)
		return chaterr.NewWrite("send message", err)
	}
	return nil
}

func (s *Store) writeMessage(ctx context.Context, collection, id string, f docstore.Fields) error {
	if id != "" {
		return s.retry(ctx, func() error { return s.docs.Set(ctx, collection, id, f) })
	}
	_, err := s.docs.Add(ctx, collection, f)
	return err
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	if s.opts.Retry == 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, s.opts.Retry), ctx))
}

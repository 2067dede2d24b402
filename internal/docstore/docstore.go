// Package docstore is the contract for the realtime document database the
// chat layer is built on, plus adapters for an in-process store, MongoDB and
// PostgreSQL.
//
// Documents live in slash-separated collection paths ("users",
// "messages/alice/bob") and carry a flat field map. Listeners receive a full
// ordered replay of the collection followed by live changes.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Fields is the payload of a document.
type Fields map[string]any

// Document is one stored record.
type Document struct {
	Collection string
	ID         string
	// Version increases on every write to the same document. Listeners use
	// it to drop stale or repeated deliveries.
	Version int64
	Fields  Fields
}

// Path returns "collection/id".
func (d Document) Path() string { return d.Collection + "/" + d.ID }

// ChangeKind tells a listener whether a document is new to it.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
)

func (k ChangeKind) String() string {
	if k == Modified {
		return "modified"
	}
	return "added"
}

// Change is one listener event.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Op is a filter comparison.
type Op int

const (
	Equal Op = iota
	NotEqual
)

// Filter restricts Query results by a single field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Store is the document database collaborator.
type Store interface {
	// Set creates or replaces the document at collection/id.
	Set(ctx context.Context, collection, id string, f Fields) error
	// Add creates a document with a store-assigned ID and returns it.
	Add(ctx context.Context, collection string, f Fields) (string, error)
	// Get returns one document or an error wrapping chaterr.ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Delete removes the document at collection/id if present.
	Delete(ctx context.Context, collection, id string) error
	// Query returns every document in collection matching all filters.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Listen replays collection ordered by orderBy ascending, then streams
	// live changes until ctx is cancelled or the subscription is closed.
	Listen(ctx context.Context, collection, orderBy string) (*Subscription, error)
}

// Subscription delivers the changes of one Listen call.
type Subscription struct {
	changes chan Change
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func newSubscription(ctx context.Context) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		changes: make(chan Change),
		cancel:  cancel,
		done:    make(chan struct{}),
	}, ctx
}

// Changes returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Changes() <-chan Change { return s.changes }

// Close stops the subscription and waits for its producer to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Err returns the error that ended the subscription, if any. Cancellation is
// not an error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.changes)
	close(s.done)
}

// send delivers c unless ctx ends first.
func (s *Subscription) send(ctx context.Context, c Change) bool {
	select {
	case s.changes <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// versionFilter drops deliveries whose version was already seen for the
// same document. Backends that replay after opening a change feed see some
// writes twice.
type versionFilter struct {
	seen map[string]int64
}

func newVersionFilter() *versionFilter {
	return &versionFilter{seen: make(map[string]int64)}
}

// accept returns the change kind for d, or false if d is not newer than the
// last delivered version.
func (f *versionFilter) accept(d Document) (ChangeKind, bool) {
	last, ok := f.seen[d.ID]
	if ok && d.Version <= last {
		return 0, false
	}
	f.seen[d.ID] = d.Version
	if ok {
		return Modified, true
	}
	return Added, true
}

// SortDocuments orders docs by the orderBy field ascending, breaking ties by
// version and then ID so the order is total.
func SortDocuments(docs []Document, orderBy string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if c := compareValues(docs[i].Fields[orderBy], docs[j].Fields[orderBy]); c != 0 {
			return c < 0
		}
		if docs[i].Version != docs[j].Version {
			return docs[i].Version < docs[j].Version
		}
		return docs[i].ID < docs[j].ID
	})
}

// compareValues orders times, numbers and strings; anything else compares
// by its printed form. Missing values sort first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// matches reports whether f satisfies every filter.
func matches(f Fields, filters []Filter) bool {
	for _, flt := range filters {
		eq := compareValues(f[flt.Field], flt.Value) == 0
		if flt.Op == Equal && !eq {
			return false
		}
		if flt.Op == NotEqual && eq {
			return false
		}
	}
	return true
}

// SplitPath splits "a/b/c" into its parent collection "a/b" and ID "c".
func SplitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// clone returns d with its own copy of the field map.
func (d Document) clone() Document {
	d.Fields = cloneFields(d.Fields)
	return d
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

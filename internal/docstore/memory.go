package docstore

import (
	"context"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/google/uuid"
)

// Memory is an in-process Store. Listeners get a consistent replay: the
// snapshot and the listener registration happen under the same lock, so no
// write is both replayed and delivered live. Documents are copied in and
// out; callers never share a field map with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	version     int64
	hub         *listenerHub
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		hub:         newListenerHub(),
	}
}

// Set creates or replaces collection/id.
func (m *Memory) Set(ctx context.Context, collection, id string, f Fields) error {
	if err := ctx.Err(); err != nil {
		return chaterr.NewWrite(collection+"/"+id+" set", err)
	}
	m.put(collection, id, f)
	return nil
}

// Add stores f under a new random ID.
func (m *Memory) Add(ctx context.Context, collection string, f Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", chaterr.NewWrite(collection+" add", err)
	}
	id := uuid.NewString()
	m.put(collection, id, f)
	return id, nil
}

func (m *Memory) put(collection, id string, f Fields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		m.collections[collection] = docs
	}
	_, existed := docs[id]

	m.version++
	doc := Document{Collection: collection, ID: id, Version: m.version, Fields: cloneFields(f)}
	docs[id] = doc

	kind := Added
	if existed {
		kind = Modified
	}
	m.hub.Publish(collection, Change{Kind: kind, Doc: doc})
}

// Get returns collection/id.
func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, chaterr.NewRead(collection+"/"+id+" get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, chaterr.NewRead(collection+"/"+id+" get", chaterr.ErrNotFound)
	}
	return doc.clone(), nil
}

// Delete removes collection/id. Listeners are not notified; no chat flow
// deletes documents that anyone listens to.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return chaterr.NewWrite(collection+"/"+id+" delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	return nil
}

// Query returns matching documents in unspecified order.
func (m *Memory) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, chaterr.NewRead(collection+" query", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Document
	for _, d := range m.collections[collection] {
		if matches(d.Fields, filters) {
			out = append(out, d.clone())
		}
	}
	return out, nil
}

// Listen replays collection ordered by orderBy, then streams live writes.
func (m *Memory) Listen(ctx context.Context, collection, orderBy string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, chaterr.NewRead(collection+" listen", err)
	}
	sub, ctx := newSubscription(ctx)
	l := newListener()

	m.mu.Lock()
	snapshot := make([]Document, 0, len(m.collections[collection]))
	for _, d := range m.collections[collection] {
		snapshot = append(snapshot, d.clone())
	}
	id := m.hub.Register(collection, l)
	m.mu.Unlock()

	SortDocuments(snapshot, orderBy)

	go func() {
		m.pump(ctx, sub, l, snapshot)
		m.hub.Unregister(collection, id)
		sub.finish(nil)
	}()
	return sub, nil
}

func (m *Memory) pump(ctx context.Context, sub *Subscription, l *listener, snapshot []Document) {
	filter := newVersionFilter()
	deliver := func(d Document) bool {
		kind, ok := filter.accept(d)
		if !ok {
			return true
		}
		return sub.send(ctx, Change{Kind: kind, Doc: d})
	}

	for _, d := range snapshot {
		if !deliver(d) {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.notify:
			for _, c := range l.drain() {
				if !deliver(c.Doc.clone()) {
					return
				}
			}
		}
	}
}

// Listeners returns how many subscriptions watch collection.
func (m *Memory) Listeners(collection string) int {
	return m.hub.Count(collection)
}

package docstore

import "sync"

// listener buffers changes for one Memory subscription so writers never
// block on a slow reader and nothing is dropped.
type listener struct {
	mu      sync.Mutex
	pending []Change
	notify  chan struct{}
}

func newListener() *listener {
	return &listener{notify: make(chan struct{}, 1)}
}

func (l *listener) push(c Change) {
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *listener) drain() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// listenerHub maps collection paths to the listeners watching them.
type listenerHub struct {
	mu        sync.RWMutex
	listeners map[string]map[int64]*listener
	nextID    int64
}

func newListenerHub() *listenerHub {
	return &listenerHub{listeners: make(map[string]map[int64]*listener)}
}

// Register adds l under collection and returns an id for Unregister.
func (h *listenerHub) Register(collection string, l *listener) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.listeners[collection]; !ok {
		h.listeners[collection] = make(map[int64]*listener)
	}

	h.nextID++
	id := h.nextID
	h.listeners[collection][id] = l
	return id
}

// Unregister removes a previously registered listener.
func (h *listenerHub) Unregister(collection string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ls, ok := h.listeners[collection]; ok {
		delete(ls, id)
		if len(ls) == 0 {
			delete(h.listeners, collection)
		}
	}
}

// Publish queues c on every listener of collection.
func (h *listenerHub) Publish(collection string, c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.listeners[collection] {
		l.push(c)
	}
}

// Count returns the number of listeners on collection.
func (h *listenerHub) Count(collection string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[collection])
}

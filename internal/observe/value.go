// Package observe holds values that a presentation layer watches. Writers
// call Set from any goroutine; each watcher receives the latest value on its
// own channel and intermediate values may be coalesced.
package observe

import "sync"

// Value is a concurrency-safe observable field.
type Value[T any] struct {
	mu       sync.RWMutex
	cur      T
	watchers map[int64]chan T
	nextID   int64
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, watchers: make(map[int64]chan T)}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set replaces the current value and notifies watchers. A watcher that has
// not drained its previous value sees only the newest one.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- val
	}
}

// Watch returns a channel primed with the current value and a cancel func
// that closes it.
func (v *Value[T]) Watch() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.watchers == nil {
		v.watchers = make(map[int64]chan T)
	}
	v.nextID++
	id := v.nextID
	ch := make(chan T, 1)
	ch <- v.cur
	v.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.watchers[id]; ok {
				delete(v.watchers, id)
				close(c)
			}
		})
	}
}

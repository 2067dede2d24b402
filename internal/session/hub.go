package session

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionEnded is the cancel cause given to streams closed because their
// user signed out.
var ErrSessionEnded = errors.New("session ended")

// ConnectionHub tracks the live streams of each signed-in user, gRPC and
// WebSocket alike, so that a sign-out can end them. Streams are keyed by
// user id; each registration gets an id used later to unregister it when
// the stream returns.
type ConnectionHub struct {
	mu      sync.RWMutex
	streams map[string]map[int64]context.CancelCauseFunc
	nextID  int64
}

// NewConnectionHub creates a new hub instance.
func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{streams: make(map[string]map[int64]context.CancelCauseFunc)}
}

// Register records cancel for one of userID's streams.
func (h *ConnectionHub) Register(userID string, cancel context.CancelCauseFunc) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.streams[userID]; !ok {
		h.streams[userID] = make(map[int64]context.CancelCauseFunc)
	}

	h.nextID++
	id := h.nextID
	h.streams[userID][id] = cancel
	return id
}

// Unregister removes a previously-registered stream.
func (h *ConnectionHub) Unregister(userID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.streams[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(h.streams, userID)
		}
	}
}

// Disconnect cancels every stream userID has open with ErrSessionEnded and
// returns how many there were. The streams unregister themselves as they
// return.
func (h *ConnectionHub) Disconnect(userID string) int {
	h.mu.RLock()
	conns := h.streams[userID]
	cancels := make([]context.CancelCauseFunc, 0, len(conns))
	for _, c := range conns {
		cancels = append(cancels, c)
	}
	h.mu.RUnlock()

	for _, cancel := range cancels {
		cancel(ErrSessionEnded)
	}
	if len(cancels) > 0 {
		log.Infof("closed %d stream(s) of %s", len(cancels), userID)
	}
	return len(cancels)
}

// Connected returns the number of open streams for userID.
func (h *ConnectionHub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}

// Track derives a stream context from parent and registers it under
// userID. The returned func must be deferred by the stream handler.
func (h *ConnectionHub) Track(parent context.Context, userID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	id := h.Register(userID, cancel)
	return ctx, func() {
		h.Unregister(userID, id)
		cancel(nil)
	}
}

// Ended reports whether ctx was cancelled by Disconnect.
func Ended(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSessionEnded)
}

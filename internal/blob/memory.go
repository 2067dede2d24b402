package blob

import (
	"context"
	"sync"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
)

// Memory keeps objects in a map.
type Memory struct {
	mu        sync.RWMutex
	objects   map[string]Object
	publicURL string
}

// NewMemory returns an empty store whose URLs are rooted at publicURL.
func NewMemory(publicURL string) *Memory {
	return &Memory{objects: make(map[string]Object), publicURL: publicURL}
}

func (m *Memory) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return chaterr.NewWrite(path+" put", err)
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = Object{Data: cp, ContentType: contentType}
	return nil
}

func (m *Memory) Get(ctx context.Context, path string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, chaterr.NewRead(path+" get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return Object{}, chaterr.NewRead(path+" get", chaterr.ErrNotFound)
	}
	return obj, nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return chaterr.NewWrite(path+" delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *Memory) DownloadURL(ctx context.Context, path string) (string, error) {
	if _, err := m.Get(ctx, path); err != nil {
		return "", err
	}
	return URLFor(m.publicURL, path), nil
}

// Package auth is the identity collaborator: credential accounts, password
// hashing and the JWT session tokens issued on sign-in.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("auth")

// ErrAccountExists is returned when an email is already registered.
var ErrAccountExists = errors.New("user already exists")

// Account is a stored credential.
type Account struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore persists credentials. Lookups of missing accounts return an
// error wrapping chaterr.ErrNotFound.
type AccountStore interface {
	CreateAccount(ctx context.Context, a Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, uid string) (Account, error)
	DeleteAccount(ctx context.Context, uid string) error
}

// MemoryAccounts is an in-process AccountStore.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

// NewMemoryAccounts returns an empty store.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byID: make(map[string]Account), byEmail: make(map[string]string)}
}

func (m *MemoryAccounts) CreateAccount(ctx context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrAccountExists
	}
	m.byID[a.UID] = a
	m.byEmail[a.Email] = a.UID
	return nil
}

func (m *MemoryAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.byEmail[email]
	if !ok {
		return Account{}, chaterr.ErrNotFound
	}
	return m.byID[uid], nil
}

func (m *MemoryAccounts) AccountByID(ctx context.Context, uid string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[uid]
	if !ok {
		return Account{}, chaterr.ErrNotFound
	}
	return a, nil
}

func (m *MemoryAccounts) DeleteAccount(ctx context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[uid]; ok {
		delete(m.byEmail, a.Email)
		delete(m.byID, uid)
	}
	return nil
}

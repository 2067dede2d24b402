package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/db"
)

func newTestProvider() *LocalProvider {
	return NewLocalProvider(NewMemoryAccounts(), NewJWTManager("test-secret", time.Hour))
}

func TestProviderCreateAndSignIn(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	created, err := p.CreateAccount(ctx, "  Alice@Example.com ", "password1")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if created.UID == "" || created.Token == "" || created.Email != "alice@example.com" {
		t.Fatalf("unexpected identity %+v", created)
	}

	if _, err := p.CreateAccount(ctx, "alice@example.com", "password2"); chaterr.KindOf(err) != chaterr.Auth || !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected duplicate account auth error, got %v", err)
	}

	signed, err := p.SignIn(ctx, "ALICE@example.com", "password1")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if signed.UID != created.UID {
		t.Fatalf("SignIn returned uid %s, want %s", signed.UID, created.UID)
	}

	if _, err := p.SignIn(ctx, "alice@example.com", "wrong"); chaterr.KindOf(err) != chaterr.Auth {
		t.Fatalf("expected auth error for wrong password, got %v", err)
	}
	if _, err := p.SignIn(ctx, "nobody@example.com", "password1"); chaterr.KindOf(err) != chaterr.Auth {
		t.Fatalf("expected auth error for unknown user, got %v", err)
	}
}

func TestProviderRejectsWeakInput(t *testing.T) {
	p := newTestProvider()
	if _, err := p.CreateAccount(context.Background(), "", "password1"); err == nil {
		t.Fatal("expected error for empty email")
	}
	if _, err := p.CreateAccount(context.Background(), "a@example.com", "123"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestProviderCurrentIdentityAndSignOut(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	if _, ok, err := p.CurrentIdentity(ctx); ok || err != nil {
		t.Fatalf("expected no identity without token, got ok=%v err=%v", ok, err)
	}

	id, err := p.CreateAccount(ctx, "bob@example.com", "password1")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	authed := ContextWithToken(ctx, id.Token)

	cur, ok, err := p.CurrentIdentity(authed)
	if err != nil || !ok {
		t.Fatalf("expected identity, got ok=%v err=%v", ok, err)
	}
	if cur.UID != id.UID || cur.Email != "bob@example.com" {
		t.Fatalf("unexpected identity %+v", cur)
	}

	if err := p.SignOut(authed); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, ok, _ := p.CurrentIdentity(authed); ok {
		t.Fatal("expected no identity after sign out")
	}

	if _, ok, _ := p.CurrentIdentity(ContextWithToken(ctx, "garbage")); ok {
		t.Fatal("expected garbage token to yield no identity")
	}
}

func TestProviderDeleteAccount(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()
	id, err := p.CreateAccount(ctx, "carol@example.com", "password1")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := p.DeleteAccount(ctx, id.UID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, ok, _ := p.CurrentIdentity(ContextWithToken(ctx, id.Token)); ok {
		t.Fatal("expected deleted account to have no identity")
	}
	if _, err := p.CreateAccount(ctx, "carol@example.com", "password1"); err != nil {
		t.Fatalf("email should be reusable after delete: %v", err)
	}
}

// testAccountStore runs the shared AccountStore behaviour.
func testAccountStore(t *testing.T, s AccountStore, email string) {
	ctx := context.Background()
	a := Account{UID: "uid-" + email, Email: email, PasswordHash: "hash", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}

	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := s.CreateAccount(ctx, Account{UID: "other-" + email, Email: email, PasswordHash: "x", CreatedAt: a.CreatedAt}); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	got, err := s.AccountByEmail(ctx, email)
	if err != nil {
		t.Fatalf("AccountByEmail failed: %v", err)
	}
	if got.UID != a.UID || got.PasswordHash != "hash" {
		t.Fatalf("unexpected account %+v", got)
	}
	if _, err := s.AccountByID(ctx, a.UID); err != nil {
		t.Fatalf("AccountByID failed: %v", err)
	}

	if err := s.DeleteAccount(ctx, a.UID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, err := s.AccountByID(ctx, a.UID); !chaterr.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryAccounts(t *testing.T) {
	testAccountStore(t, NewMemoryAccounts(), "mem@example.com")
}

// These are integration tests and require a running MongoDB or PostgreSQL.

func TestMongoAccounts(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}
	ctx := context.Background()
	c, err := db.New(ctx, uri, "chat_db_auth_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	defer func() {
		_ = c.Database().Drop(context.Background())
		_ = c.Close(context.Background())
	}()
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	testAccountStore(t, NewMongoAccounts(c.Collection(db.AccountsCollection)), "mongo@example.com")
}

func TestPostgresAccounts(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set; skipping integration test")
	}
	ctx := context.Background()
	pool, err := db.NewPostgres(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	defer pool.Close()
	if err := db.MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("MigratePostgres failed: %v", err)
	}
	email := time.Now().UTC().Format("20060102-150405.000") + "-pg@example.com"
	testAccountStore(t, NewPostgresAccounts(pool), email)
}

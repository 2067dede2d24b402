package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/db"
)

// next reads one change or fails after a timeout.
func next(t *testing.T, sub *Subscription) Change {
	t.Helper()
	select {
	case c, ok := <-sub.Changes():
		if !ok {
			t.Fatalf("subscription closed early: %v", sub.Err())
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	return Change{}
}

// expectQuiet fails if a change arrives within a short window.
func expectQuiet(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case c := <-sub.Changes():
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, s Store, root string) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	thread := root + "/alice/bob"

	// Written out of order; replay must come back ordered by timestamp.
	if _, err := s.Add(ctx, thread, Fields{"text": "second", "timestamp": base.Add(2 * time.Second)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Add(ctx, thread, Fields{"text": "first", "timestamp": base.Add(time.Second)}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sub, err := s.Listen(ctx, thread, "timestamp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer sub.Close()

	if c := next(t, sub); c.Doc.Fields["text"] != "first" || c.Kind != Added {
		t.Fatalf("expected first replayed, got %+v", c)
	}
	if c := next(t, sub); c.Doc.Fields["text"] != "second" {
		t.Fatalf("expected second replayed, got %+v", c)
	}

	// Live append.
	id, err := s.Add(ctx, thread, Fields{"text": "third", "timestamp": base.Add(3 * time.Second)})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	c := next(t, sub)
	if c.Doc.ID != id || c.Doc.Fields["text"] != "third" {
		t.Fatalf("expected live third, got %+v", c)
	}
	expectQuiet(t, sub)

	// Set replaces and is reported as a modification.
	if err := s.Set(ctx, thread, id, Fields{"text": "third edited", "timestamp": base.Add(4 * time.Second)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	c = next(t, sub)
	if c.Kind != Modified || c.Doc.Fields["text"] != "third edited" {
		t.Fatalf("expected modification, got %+v", c)
	}

	got, err := s.Get(ctx, thread, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Fields["text"] != "third edited" {
		t.Fatalf("Get returned %+v", got)
	}
	if _, err := s.Get(ctx, thread, "missing"); !chaterr.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Query with a not-equal filter.
	users := root + "_users"
	for _, uid := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, users, uid, Fields{"uid": uid}); err != nil {
			t.Fatalf("Set user failed: %v", err)
		}
	}
	docs, err := s.Query(ctx, users, Filter{Field: "uid", Op: NotEqual, Value: "a"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 users, got %d", len(docs))
	}
	for _, d := range docs {
		if d.Fields["uid"] == "a" {
			t.Fatalf("excluded user returned: %+v", d)
		}
	}

	if err := s.Delete(ctx, users, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, users, "b"); !chaterr.IsNotFound(err) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}

	sub.Close()
	if _, ok := <-sub.Changes(); ok {
		t.Fatal("expected closed channel after Close")
	}
	if sub.Err() != nil {
		t.Fatalf("Close should not report an error, got %v", sub.Err())
	}
}

func TestMemoryContract(t *testing.T) {
	testStoreContract(t, NewMemory(), "messages")
}

func TestMemoryCloseUnregisters(t *testing.T) {
	m := NewMemory()
	sub, err := m.Listen(context.Background(), "recent_messages/a/messages", "timestamp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if m.Listeners("recent_messages/a/messages") != 1 {
		t.Fatal("expected one registered listener")
	}
	sub.Close()
	if n := m.Listeners("recent_messages/a/messages"); n != 0 {
		t.Fatalf("expected listener to be unregistered, got %d", n)
	}
}

func TestMemoryContextCancelEndsSubscription(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.Listen(ctx, "messages/a/b", "timestamp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	cancel()
	select {
	case _, ok := <-sub.Changes():
		if ok {
			t.Fatal("expected no changes after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not end after cancel")
	}
}

func TestMemorySlowReaderLosesNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, err := m.Listen(ctx, "messages/a/b", "timestamp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer sub.Close()

	const n = 200
	base := time.Unix(0, 0)
	for i := 0; i < n; i++ {
		if _, err := m.Add(ctx, "messages/a/b", Fields{"n": i, "timestamp": base.Add(time.Duration(i))}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	for i := 0; i < n; i++ {
		c := next(t, sub)
		if c.Doc.Fields["n"] != i {
			t.Fatalf("expected n=%d, got %v", i, c.Doc.Fields["n"])
		}
	}
}

func TestSortDocumentsTieBreak(t *testing.T) {
	ts := time.Unix(100, 0)
	docs := []Document{
		{ID: "b", Version: 2, Fields: Fields{"timestamp": ts}},
		{ID: "a", Version: 3, Fields: Fields{"timestamp": ts}},
		{ID: "c", Version: 1, Fields: Fields{}},
	}
	SortDocuments(docs, "timestamp")
	if docs[0].ID != "c" || docs[1].ID != "b" || docs[2].ID != "a" {
		t.Fatalf("unexpected order: %s %s %s", docs[0].ID, docs[1].ID, docs[2].ID)
	}
}

func TestSplitPath(t *testing.T) {
	coll, id := SplitPath("recent_messages/a/messages/b")
	if coll != "recent_messages/a/messages" || id != "b" {
		t.Fatalf("SplitPath returned %q %q", coll, id)
	}
}

func TestMongoContract(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}
	ctx := context.Background()
	c, err := db.New(ctx, uri, "chat_db_docstore_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	defer func() {
		_ = c.Database().Drop(context.Background())
		_ = c.Close(context.Background())
	}()
	testStoreContract(t, NewMongo(c.Database()), "messages")
}

func TestPostgresContract(t *testing.T) {
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
	root := "test_" + time.Now().UTC().Format("20060102150405")
	defer func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM documents WHERE collection LIKE $1`, root+"%")
	}()
	store := NewPostgres(pool)
	defer store.Close()
	testStoreContract(t, store, root)
}

func TestPostgresListenersDoNotHoldPoolConnections(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set; skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPostgres(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	defer pool.Close()
	if err := db.MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("MigratePostgres failed: %v", err)
	}
	root := "listeners_" + time.Now().UTC().Format("20060102150405")
	defer func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM documents WHERE collection LIKE $1`, root+"%")
	}()

	store := NewPostgres(pool)
	defer store.Close()

	thread := root + "/alice/bob"
	n := int(pool.Stat().MaxConns()) + 2
	subs := make([]*Subscription, 0, n)
	for i := 0; i < n; i++ {
		sub, err := store.Listen(ctx, thread, "timestamp")
		if err != nil {
			t.Fatalf("Listen %d failed: %v", i, err)
		}
		defer sub.Close()
		subs = append(subs, sub)
	}

	writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
	defer writeCancel()
	id, err := store.Add(writeCtx, thread, Fields{"text": "hello", "timestamp": time.Now()})
	if err != nil {
		t.Fatalf("Add with %d open listeners failed: %v", n, err)
	}
	for i, sub := range subs {
		if c := next(t, sub); c.Doc.ID != id {
			t.Fatalf("listener %d got %+v, want %s", i, c, id)
		}
	}
}

func TestPostgresCloseEndsSubscriptions(t *testing.T) {
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

	store := NewPostgres(pool)
	sub, err := store.Listen(ctx, "closing_"+time.Now().UTC().Format("20060102150405"), "timestamp")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	store.Close()

	select {
	case _, ok := <-sub.Changes():
		if ok {
			t.Fatal("expected no changes after Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end after Close")
	}
	if sub.Err() == nil {
		t.Fatal("expected an error once the feed is closed")
	}
	if _, err := store.Listen(ctx, "closing", "timestamp"); err == nil {
		t.Fatal("expected Listen to fail on a closed store")
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "users", "a", Fields{"uid": "a", "email": "a@example.com"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := m.Get(ctx, "users", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.Fields["email"] = "changed by Get caller"

	docs, err := m.Query(ctx, "users")
	if err != nil || len(docs) != 1 {
		t.Fatalf("Query returned %d docs (%v)", len(docs), err)
	}
	if docs[0].Fields["email"] != "a@example.com" {
		t.Fatalf("Get result shares the stored map: %v", docs[0].Fields["email"])
	}
	docs[0].Fields["email"] = "changed by Query caller"

	sub, err := m.Listen(ctx, "users", "uid")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer sub.Close()
	c := next(t, sub)
	if c.Doc.Fields["email"] != "a@example.com" {
		t.Fatalf("Query result shares the stored map: %v", c.Doc.Fields["email"])
	}
	c.Doc.Fields["email"] = "changed by listener"

	again, err := m.Get(ctx, "users", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Fields["email"] != "a@example.com" {
		t.Fatalf("replayed document shares the stored map: %v", again.Fields["email"])
	}
}

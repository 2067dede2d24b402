package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/blob"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/conversation"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/directory"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fixture struct {
	srv    *httptest.Server
	blobs  *blob.Memory
	docs   *docstore.Memory
	convos *conversation.Store
	jwt    *auth.JWTManager
	hub    *session.ConnectionHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		blobs: blob.NewMemory("http://example.test"),
		docs:  docstore.NewMemory(),
		jwt:   auth.NewJWTManager("test-secret", time.Hour),
		hub:   session.NewConnectionHub(),
	}
	f.jwt.OnRevoke(func(c *auth.Claims) { f.hub.Disconnect(c.UserID) })
	f.convos = conversation.New(f.docs, directory.New(f.docs), conversation.Options{})
	f.srv = httptest.NewServer(NewServer(f.blobs, f.docs, f.convos, f.jwt, f.hub).Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) token(t *testing.T, uid string) string {
	t.Helper()
	tok, _, err := f.jwt.GenerateToken(uid, uid+"@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return tok
}

func (f *fixture) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + path + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("dial %s failed (%d): %v", path, code, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAvatarDownload(t *testing.T) {
	f := newFixture(t)
	if err := f.blobs.Put(context.Background(), data.AvatarPath("u1"), []byte{0xff, 0xd8}, "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/avatars/u1", nil)
	NewServer(f.blobs, f.docs, f.convos, f.jwt, f.hub).Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if w.Body.Len() != 2 {
		t.Fatalf("unexpected body length %d", w.Body.Len())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/avatars/nobody", nil)
	NewServer(f.blobs, f.docs, f.convos, f.jwt, f.hub).Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/ws/inbox", "/ws/inbox?token=garbage", "/ws/conversations/b"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestInboxWebSocketPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/ws/inbox", f.token(t, "a"))

	if err := f.convos.SendMessage(context.Background(), "a", "b", "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var p InboxPayload
		if err := conn.ReadJSON(&p); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if len(p.Summaries) == 0 {
			continue
		}
		if p.Summaries[0].PeerID != "b" || p.Summaries[0].Text != "hi" {
			t.Fatalf("unexpected snapshot %+v", p)
		}
		return
	}
}

func TestConversationWebSocketReplaysAndStreams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.convos.SendMessage(ctx, "a", "b", "first"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	conn := f.dial(t, "/ws/conversations/a", f.token(t, "b"))
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var m MessagePayload
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if m.Text != "first" || m.FromID != "a" || m.ToID != "b" {
		t.Fatalf("unexpected replayed message %+v", m)
	}

	if err := f.convos.SendMessage(ctx, "b", "a", "second"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if m.Text != "second" || m.FromID != "b" {
		t.Fatalf("unexpected live message %+v", m)
	}
}

// waitConnected blocks until uid has n tracked streams.
func (f *fixture) waitConnected(t *testing.T, uid string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for f.hub.Connected(uid) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d streams for %s, have %d", n, uid, f.hub.Connected(uid))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketsCloseWhenTokenRevoked(t *testing.T) {
	for _, path := range []string{"/ws/inbox", "/ws/conversations/b"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t)
			tok := f.token(t, "a")
			conn := f.dial(t, path, tok)
			f.waitConnected(t, "a", 1)

			claims, err := f.jwt.VerifyToken(tok)
			if err != nil {
				t.Fatalf("VerifyToken failed: %v", err)
			}
			f.jwt.Revoke(claims)
			if err := f.convos.SendMessage(context.Background(), "b", "a", "secret after logout"); err != nil {
				t.Fatalf("SendMessage failed: %v", err)
			}

			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
						t.Fatalf("expected policy close frame, got %v", err)
					}
					break
				}
				if strings.Contains(string(raw), "secret after logout") {
					t.Fatalf("signed-out socket received %s", raw)
				}
			}
			f.waitConnected(t, "a", 0)

			resp, err := http.Get(f.srv.URL + path + "?token=" + tok)
			if err != nil {
				t.Fatalf("GET %s failed: %v", path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("revoked token: expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestWebSocketOfOtherUserStaysOpen(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/ws/conversations/a", f.token(t, "b"))
	f.waitConnected(t, "b", 1)

	f.hub.Disconnect("a")
	if err := f.convos.SendMessage(context.Background(), "a", "b", "still here"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m MessagePayload
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if m.Text != "still here" {
		t.Fatalf("unexpected message %+v", m)
	}
}

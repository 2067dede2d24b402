// Package web is the HTTP side of the chat server: avatar downloads, a
// health probe, and WebSocket views of the inbox and of single threads for
// clients that do not speak gRPC.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/avatar"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/blob"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/conversation"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("web")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Verifier checks session tokens.
type Verifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	blobs    blob.Store
	docs     docstore.Store
	convos   *conversation.Store
	verifier Verifier
	hub      *session.ConnectionHub
	upgrader websocket.Upgrader
}

// NewServer returns a Server. Any origin may open a WebSocket; the token
// query parameter is what authorizes it. WebSockets are tracked in hub and
// closed when their user signs out.
func NewServer(blobs blob.Store, docs docstore.Store, convos *conversation.Store, v Verifier, hub *session.ConnectionHub) *Server {
	return &Server{
		blobs:    blobs,
		docs:     docs,
		convos:   convos,
		verifier: v,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/avatars/:uid", s.handleAvatar)

	ws := r.Group("/ws")
	{
		ws.GET("/inbox", s.handleInbox)
		ws.GET("/conversations/:peer", s.handleConversation)
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleAvatar(c *gin.Context) {
	obj, err := s.blobs.Get(c.Request.Context(), blob.PathFromUID(c.Param("uid")))
	if chaterr.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not found"})
		return
	}
	if err != nil {
		log.Errorf("reading avatar %s: %v", c.Param("uid"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read avatar"})
		return
	}
	ct := obj.ContentType
	if ct == "" {
		ct = avatar.ContentType
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, ct, obj.Data)
}

// authenticate accepts the token as ?token= (browsers cannot set headers on
// a WebSocket handshake) or as a bearer Authorization header.
func (s *Server) authenticate(c *gin.Context) (*auth.Claims, bool) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return nil, false
	}
	claims, err := s.verifier.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	return claims, true
}

// upgrade switches to a WebSocket, registers it under userID and starts the
// read pump. The returned context ends when the client goes away or the
// user signs out; the returned func releases both.
func (s *Server) upgrade(c *gin.Context, userID string) (*websocket.Conn, context.Context, func(), bool) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warningf("websocket upgrade failed: %v", err)
		return nil, nil, nil, false
	}
	tracked, done := s.hub.Track(context.Background(), userID)
	ctx, cancel := context.WithCancel(tracked)
	go readPump(conn, cancel)
	return conn, ctx, func() {
		cancel()
		done()
	}, true
}

// readPump discards client frames and cancels once the connection drops.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Infof("websocket read: %v", err)
			}
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func writePing(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// closeIfSignedOut sends a policy close frame when ctx ended by sign-out.
func closeIfSignedOut(ctx context.Context, conn *websocket.Conn) {
	if session.Ended(ctx) {
		closeWith(conn, websocket.ClosePolicyViolation, session.ErrSessionEnded.Error())
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

package main

import (
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/blob"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/conversation"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/directory"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/session"
	v1 "github.com/PaulBabatuyi/inboxChat-gRPC/proto/chat/v1"
	"google.golang.org/grpc"
)

// Server implements the chat service over the session, directory,
// conversation and inbox components.
type Server struct {
	v1.UnimplementedChatServiceServer

	identity *auth.LocalProvider
	blobs    blob.Store
	docs     docstore.Store
	users    *directory.Service
	convos   *conversation.Store
	hub      *session.ConnectionHub

	rollbackSignup bool
}

// newServer returns a ready-to-use Server wired with its collaborators.
func newServer(identity *auth.LocalProvider, blobs blob.Store, docs docstore.Store, convos *conversation.Store, hub *session.ConnectionHub, rollbackSignup bool) *Server {
	return &Server{
		identity:       identity,
		blobs:          blobs,
		docs:           docs,
		users:          directory.New(docs),
		convos:         convos,
		hub:            hub,
		rollbackSignup: rollbackSignup,
	}
}

// newGate returns a session gate for one call.
func (s *Server) newGate() *session.Gate {
	g := session.NewGate(s.identity, s.blobs, s.docs)
	g.RollbackOnFailure = s.rollbackSignup
	return g
}

// registerService registers the ChatService on the given gRPC server.
func registerService(s *grpc.Server, srv *Server) {
	v1.RegisterChatServiceServer(s, srv)
}

// newSessionHub returns a hub whose streams end as soon as their user's
// token is revoked.
func newSessionHub(jwtMgr *auth.JWTManager) *session.ConnectionHub {
	hub := session.NewConnectionHub()
	jwtMgr.OnRevoke(func(c *auth.Claims) {
		hub.Disconnect(c.UserID)
	})
	return hub
}

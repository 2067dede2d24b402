package main

import (
	"context"
	"errors"
	"image"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/avatar"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/inbox"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/normalize"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/session"
	v1 "github.com/PaulBabatuyi/inboxChat-gRPC/proto/chat/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Register creates the account, stores the avatar and the profile, and
// returns a session token.
func (s *Server) Register(ctx context.Context, req *v1.RegisterRequest) (*v1.RegisterResponse, error) {
	var img image.Image
	if raw := req.GetAvatarJpeg(); len(raw) > 0 {
		decoded, err := avatar.Decode(raw)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid avatar image: %v", err)
		}
		img = decoded
	}

	gate := s.newGate()
	err := gate.Register(ctx, session.RegisterRequest{
		Email:    req.GetEmail(),
		Password: req.GetPassword(),
		Avatar:   img,
	})
	msg := gate.Status().Get()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrMissingAvatar):
		return nil, status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, auth.ErrAccountExists):
		return nil, status.Error(codes.AlreadyExists, msg)
	case chaterr.KindOf(err) == chaterr.Auth:
		return nil, status.Error(codes.InvalidArgument, msg)
	default:
		log.Errorf("register failed: %v", err)
		return nil, statusFromError(err, msg)
	}

	id, _ := gate.Identity()
	return &v1.RegisterResponse{
		Token:     id.Token,
		UserId:    id.UID,
		ExpiresAt: timestamppb.New(id.ExpiresAt),
		Status:    msg,
	}, nil
}

// Login authenticates a user and returns a JWT token
func (s *Server) Login(ctx context.Context, req *v1.LoginRequest) (*v1.LoginResponse, error) {
	gate := s.newGate()
	if err := gate.Login(ctx, req.GetEmail(), req.GetPassword()); err != nil {
		if chaterr.KindOf(err) == chaterr.Auth {
			return nil, status.Error(codes.Unauthenticated, gate.Status().Get())
		}
		return nil, statusFromError(err, gate.Status().Get())
	}

	id, _ := gate.Identity()
	return &v1.LoginResponse{
		Token:     id.Token,
		UserId:    id.UID,
		ExpiresAt: timestamppb.New(id.ExpiresAt),
	}, nil
}

// Logout revokes the caller's token and ends the caller's open streams.
// SignOut may find the token already revoked; the hub is asked again so the
// streams end either way.
func (s *Server) Logout(ctx context.Context, _ *v1.LogoutRequest) (*v1.LogoutResponse, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	gate := s.newGate()
	gate.Start(ctx)
	gate.SignOut(ctx)

	s.hub.Disconnect(claims.UserID)
	return &v1.LogoutResponse{}, nil
}

// Me returns the caller's profile.
func (s *Server) Me(ctx context.Context, _ *v1.MeRequest) (*v1.User, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	u, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, statusFromError(err, "failed to load profile")
	}
	return userToProto(u), nil
}

// ListUsers returns everyone except the caller.
func (s *Server) ListUsers(ctx context.Context, _ *v1.ListUsersRequest) (*v1.ListUsersResponse, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	users, err := s.users.ListOtherUsers(ctx, claims.UserID)
	if err != nil {
		return nil, statusFromError(err, s.users.Status().Get())
	}

	resp := &v1.ListUsersResponse{Users: make([]*v1.User, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, userToProto(u))
	}
	return resp, nil
}

// SendMessage writes a message to both copies of the thread and updates
// the sender's inbox.
func (s *Server) SendMessage(ctx context.Context, req *v1.SendMessageRequest) (*v1.SendMessageResponse, error) {
	claims, ok := getClaimsFromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	toID := req.GetToId()
	if toID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "to_id is required")
	}
	if toID == claims.UserID {
		return nil, status.Errorf(codes.InvalidArgument, "cannot send a message to yourself")
	}

	m, err := s.convos.Deliver(ctx, claims.UserID, toID, normalize.Text(req.GetText()))
	if err != nil {
		return nil, statusFromError(err, "Failed to save message: "+err.Error())
	}
	return &v1.SendMessageResponse{SentAt: timestamppb.New(m.SentAt)}, nil
}

// StreamConversation replays the caller's copy of the thread with peer_id
// and then streams new messages until the client goes away or logs out.
func (s *Server) StreamConversation(req *v1.StreamConversationRequest, stream v1.ChatService_StreamConversationServer) error {
	claims, ok := getClaimsFromContext(stream.Context())
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	if req.GetPeerId() == "" {
		return status.Errorf(codes.InvalidArgument, "peer_id is required")
	}

	ctx, done := s.hub.Track(stream.Context(), claims.UserID)
	defer done()

	ms, err := s.convos.StreamConversation(ctx, claims.UserID, req.GetPeerId())
	if err != nil {
		return statusFromError(err, "failed to open conversation")
	}
	defer ms.Close()

	for m := range ms.Messages() {
		if err := stream.Send(messageToProto(m)); err != nil {
			return err
		}
	}
	if err := ms.Err(); err != nil {
		return statusFromError(err, "conversation stream failed")
	}
	return streamEnded(ctx)
}

// StreamRecentMessages sends the caller's inbox, most recent peer first,
// each time it changes.
func (s *Server) StreamRecentMessages(_ *v1.StreamRecentMessagesRequest, stream v1.ChatService_StreamRecentMessagesServer) error {
	claims, ok := getClaimsFromContext(stream.Context())
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	ctx, done := s.hub.Track(stream.Context(), claims.UserID)
	defer done()

	p, err := inbox.Open(ctx, s.docs, claims.UserID)
	if err != nil {
		return statusFromError(err, "failed to open inbox")
	}
	defer p.Close()

	snaps, stop := p.Snapshots().Watch()
	defer stop()

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if err := stream.Send(summariesToProto(snap)); err != nil {
				return err
			}
		case <-p.Done():
			if ctx.Err() != nil {
				return streamEnded(ctx)
			}
			return status.Error(codes.Unavailable, p.Status().Get())
		case <-ctx.Done():
			return streamEnded(ctx)
		}
	}
}

// streamEnded reports why a stream context finished. A logout is surfaced
// to the client; the client going away is not an error.
func streamEnded(ctx context.Context) error {
	if session.Ended(ctx) {
		return status.Error(codes.Unauthenticated, session.ErrSessionEnded.Error())
	}
	return nil
}

// statusFromError maps classified failures onto gRPC codes. msg is the
// user-facing text.
func statusFromError(err error, msg string) error {
	if msg == "" {
		msg = err.Error()
	}
	if chaterr.IsNotFound(err) {
		return status.Error(codes.NotFound, msg)
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, msg)
	}
	switch chaterr.KindOf(err) {
	case chaterr.Auth:
		return status.Error(codes.Unauthenticated, msg)
	case chaterr.Read:
		return status.Error(codes.Unavailable, msg)
	case chaterr.DataShape:
		return status.Error(codes.DataLoss, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func userToProto(u data.User) *v1.User {
	return &v1.User{Id: u.ID, Email: u.Email, AvatarUrl: u.AvatarURL}
}

func messageToProto(m data.Message) *v1.Message {
	return &v1.Message{
		Id:     m.ID,
		FromId: m.SenderID,
		ToId:   m.RecipientID,
		Text:   m.Text,
		SentAt: timestamppb.New(m.SentAt),
	}
}

func summariesToProto(list []data.RecentMessageSummary) *v1.RecentMessages {
	out := &v1.RecentMessages{Summaries: make([]*v1.RecentMessage, 0, len(list))}
	for _, s := range list {
		out.Summaries = append(out.Summaries, &v1.RecentMessage{
			PeerId:        s.PeerID,
			PeerEmail:     s.PeerEmail,
			PeerAvatarUrl: s.PeerAvatarURL,
			Text:          s.Text,
			SentAt:        timestamppb.New(s.SentAt),
		})
	}
	return out
}

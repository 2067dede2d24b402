package web

import (
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/data"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/inbox"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MessagePayload is one thread message as pushed over a WebSocket.
type MessagePayload struct {
	ID     string    `json:"id"`
	FromID string    `json:"from_id"`
	ToID   string    `json:"to_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// SummaryPayload is one inbox row.
type SummaryPayload struct {
	PeerID        string    `json:"peer_id"`
	PeerEmail     string    `json:"peer_email"`
	PeerAvatarURL string    `json:"peer_avatar_url"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

// InboxPayload is a full inbox snapshot, most recent peer first.
type InboxPayload struct {
	Summaries []SummaryPayload `json:"summaries"`
}

func messagePayload(m data.Message) MessagePayload {
	return MessagePayload{ID: m.ID, FromID: m.SenderID, ToID: m.RecipientID, Text: m.Text, SentAt: m.SentAt}
}

func inboxPayload(list []data.RecentMessageSummary) InboxPayload {
	out := InboxPayload{Summaries: make([]SummaryPayload, 0, len(list))}
	for _, s := range list {
		out.Summaries = append(out.Summaries, SummaryPayload{
			PeerID:        s.PeerID,
			PeerEmail:     s.PeerEmail,
			PeerAvatarURL: s.PeerAvatarURL,
			Text:          s.Text,
			SentAt:        s.SentAt,
		})
	}
	return out
}

func (s *Server) handleInbox(c *gin.Context) {
	claims, ok := s.authenticate(c)
	if !ok {
		return
	}
	conn, ctx, cancel, ok := s.upgrade(c, claims.UserID)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	p, err := inbox.Open(ctx, s.docs, claims.UserID)
	if err != nil {
		log.Errorf("opening inbox for %s: %v", claims.UserID, err)
		closeWith(conn, websocket.CloseInternalServerErr, "failed to open inbox")
		return
	}
	defer p.Close()

	snaps, stop := p.Snapshots().Watch()
	defer stop()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				closeIfSignedOut(ctx, conn)
				return
			}
			if err := writeJSON(conn, inboxPayload(snap)); err != nil {
				return
			}
		case <-p.Done():
			if ctx.Err() != nil {
				closeIfSignedOut(ctx, conn)
				return
			}
			closeWith(conn, websocket.CloseInternalServerErr, p.Status().Get())
			return
		case <-ticker.C:
			if err := writePing(conn); err != nil {
				return
			}
		case <-ctx.Done():
			closeIfSignedOut(ctx, conn)
			return
		}
	}
}

func (s *Server) handleConversation(c *gin.Context) {
	claims, ok := s.authenticate(c)
	if !ok {
		return
	}
	peer := c.Param("peer")
	conn, ctx, cancel, ok := s.upgrade(c, claims.UserID)
	if !ok {
		return
	}
	defer conn.Close()
	defer cancel()

	ms, err := s.convos.StreamConversation(ctx, claims.UserID, peer)
	if err != nil {
		log.Errorf("opening thread %s/%s: %v", claims.UserID, peer, err)
		closeWith(conn, websocket.CloseInternalServerErr, "failed to open conversation")
		return
	}
	defer ms.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case m, ok := <-ms.Messages():
			if !ok {
				if err := ms.Err(); err != nil {
					closeWith(conn, websocket.CloseInternalServerErr, "conversation stream ended")
				} else {
					closeIfSignedOut(ctx, conn)
				}
				return
			}
			if ctx.Err() != nil {
				closeIfSignedOut(ctx, conn)
				return
			}
			if err := writeJSON(conn, messagePayload(m)); err != nil {
				return
			}
		case <-ticker.C:
			if err := writePing(conn); err != nil {
				return
			}
		case <-ctx.Done():
			closeIfSignedOut(ctx, conn)
			return
		}
	}
}

// Package v1 is the chat.v1.ChatService API described by chat.proto:
// request and response messages, the service descriptor and a JSON codec
// the messages travel in. The types are kept by hand in step with chat.proto;
// JSON keys are the proto field names.
package v1

import "google.golang.org/protobuf/types/known/timestamppb"

type RegisterRequest struct {
	Email      string `json:"email,omitempty"`
	Password   string `json:"password,omitempty"`
	AvatarJpeg []byte `json:"avatar_jpeg,omitempty"`
}

func (x *RegisterRequest) GetEmail() string {
	if x != nil {
		return x.Email
	}
	return ""
}

func (x *RegisterRequest) GetPassword() string {
	if x != nil {
		return x.Password
	}
	return ""
}

func (x *RegisterRequest) GetAvatarJpeg() []byte {
	if x != nil {
		return x.AvatarJpeg
	}
	return nil
}

type RegisterResponse struct {
	Token     string                 `json:"token,omitempty"`
	UserId    string                 `json:"user_id,omitempty"`
	ExpiresAt *timestamppb.Timestamp `json:"expires_at,omitempty"`
	Status    string                 `json:"status,omitempty"`
}

func (x *RegisterResponse) GetToken() string {
	if x != nil {
		return x.Token
	}
	return ""
}

func (x *RegisterResponse) GetUserId() string {
	if x != nil {
		return x.UserId
	}
	return ""
}

func (x *RegisterResponse) GetExpiresAt() *timestamppb.Timestamp {
	if x != nil {
		return x.ExpiresAt
	}
	return nil
}

func (x *RegisterResponse) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

type LoginRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

func (x *LoginRequest) GetEmail() string {
	if x != nil {
		return x.Email
	}
	return ""
}

func (x *LoginRequest) GetPassword() string {
	if x != nil {
		return x.Password
	}
	return ""
}

type LoginResponse struct {
	Token     string                 `json:"token,omitempty"`
	UserId    string                 `json:"user_id,omitempty"`
	ExpiresAt *timestamppb.Timestamp `json:"expires_at,omitempty"`
}

func (x *LoginResponse) GetToken() string {
	if x != nil {
		return x.Token
	}
	return ""
}

func (x *LoginResponse) GetUserId() string {
	if x != nil {
		return x.UserId
	}
	return ""
}

func (x *LoginResponse) GetExpiresAt() *timestamppb.Timestamp {
	if x != nil {
		return x.ExpiresAt
	}
	return nil
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type MeRequest struct{}

type User struct {
	Id        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

func (x *User) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *User) GetEmail() string {
	if x != nil {
		return x.Email
	}
	return ""
}

func (x *User) GetAvatarUrl() string {
	if x != nil {
		return x.AvatarUrl
	}
	return ""
}

type ListUsersRequest struct{}

type ListUsersResponse struct {
	Users []*User `json:"users,omitempty"`
}

func (x *ListUsersResponse) GetUsers() []*User {
	if x != nil {
		return x.Users
	}
	return nil
}

type SendMessageRequest struct {
	ToId string `json:"to_id,omitempty"`
	Text string `json:"text,omitempty"`
}

func (x *SendMessageRequest) GetToId() string {
	if x != nil {
		return x.ToId
	}
	return ""
}

func (x *SendMessageRequest) GetText() string {
	if x != nil {
		return x.Text
	}
	return ""
}

type SendMessageResponse struct {
	SentAt *timestamppb.Timestamp `json:"sent_at,omitempty"`
}

func (x *SendMessageResponse) GetSentAt() *timestamppb.Timestamp {
	if x != nil {
		return x.SentAt
	}
	return nil
}

type StreamConversationRequest struct {
	PeerId string `json:"peer_id,omitempty"`
}

func (x *StreamConversationRequest) GetPeerId() string {
	if x != nil {
		return x.PeerId
	}
	return ""
}

type Message struct {
	Id     string                 `json:"id,omitempty"`
	FromId string                 `json:"from_id,omitempty"`
	ToId   string                 `json:"to_id,omitempty"`
	Text   string                 `json:"text"`
	SentAt *timestamppb.Timestamp `json:"sent_at,omitempty"`
}

func (x *Message) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *Message) GetFromId() string {
	if x != nil {
		return x.FromId
	}
	return ""
}

func (x *Message) GetToId() string {
	if x != nil {
		return x.ToId
	}
	return ""
}

func (x *Message) GetText() string {
	if x != nil {
		return x.Text
	}
	return ""
}

func (x *Message) GetSentAt() *timestamppb.Timestamp {
	if x != nil {
		return x.SentAt
	}
	return nil
}

type StreamRecentMessagesRequest struct{}

// RecentMessage is one inbox row.
type RecentMessage struct {
	PeerId        string                 `json:"peer_id,omitempty"`
	PeerEmail     string                 `json:"peer_email,omitempty"`
	PeerAvatarUrl string                 `json:"peer_avatar_url,omitempty"`
	Text          string                 `json:"text"`
	SentAt        *timestamppb.Timestamp `json:"sent_at,omitempty"`
}

func (x *RecentMessage) GetPeerId() string {
	if x != nil {
		return x.PeerId
	}
	return ""
}

func (x *RecentMessage) GetPeerEmail() string {
	if x != nil {
		return x.PeerEmail
	}
	return ""
}

func (x *RecentMessage) GetPeerAvatarUrl() string {
	if x != nil {
		return x.PeerAvatarUrl
	}
	return ""
}

func (x *RecentMessage) GetText() string {
	if x != nil {
		return x.Text
	}
	return ""
}

func (x *RecentMessage) GetSentAt() *timestamppb.Timestamp {
	if x != nil {
		return x.SentAt
	}
	return nil
}

// RecentMessages is a full inbox snapshot, most recently active peer first.
type RecentMessages struct {
	Summaries []*RecentMessage `json:"summaries"`
}

func (x *RecentMessages) GetSummaries() []*RecentMessage {
	if x != nil {
		return x.Summaries
	}
	return nil
}

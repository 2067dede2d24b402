package data

import (
	"fmt"
	"time"

	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/chaterr"
	"github.com/PaulBabatuyi/inboxChat-gRPC/internal/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserFields is the stored form of u.
func UserFields(u User) docstore.Fields {
	return docstore.Fields{
		FieldUID:             u.ID,
		FieldEmail:           u.Email,
		FieldProfileImageURL: u.AvatarURL,
	}
}

// MessageFields is the stored form of m. Both thread copies use it.
func MessageFields(m Message) docstore.Fields {
	return docstore.Fields{
		FieldFromID:    m.SenderID,
		FieldToID:      m.RecipientID,
		FieldText:      m.Text,
		FieldTimestamp: m.SentAt,
	}
}

// SummaryFields is the stored form of s. fromId is the owner and toId the
// peer, whose display fields are copied in.
func SummaryFields(s RecentMessageSummary) docstore.Fields {
	return docstore.Fields{
		FieldFromID:          s.OwnerID,
		FieldToID:            s.PeerID,
		FieldText:            s.Text,
		FieldTimestamp:       s.SentAt,
		FieldProfileImageURL: s.PeerAvatarURL,
		FieldEmail:           s.PeerEmail,
	}
}

// DecodeUser reads a users/{uid} document. A missing uid falls back to the
// document ID; email and profileImageUrl default to "".
func DecodeUser(d docstore.Document) (User, error) {
	op := d.Path() + " decode"
	uid, err := optionalString(d.Fields, FieldUID, d.ID)
	if err != nil {
		return User{}, chaterr.NewDataShape(op, err)
	}
	email, err := optionalString(d.Fields, FieldEmail, "")
	if err != nil {
		return User{}, chaterr.NewDataShape(op, err)
	}
	avatar, err := optionalString(d.Fields, FieldProfileImageURL, "")
	if err != nil {
		return User{}, chaterr.NewDataShape(op, err)
	}
	return User{ID: uid, Email: email, AvatarURL: avatar}, nil
}

// DecodeMessage reads a messages/{owner}/{peer}/{id} document.
func DecodeMessage(d docstore.Document) (Message, error) {
	op := d.Path() + " decode"
	key, ok := KeyFromCollection(d.Collection)
	if !ok {
		return Message{}, chaterr.NewDataShape(op, fmt.Errorf("not a message collection: %q", d.Collection))
	}
	m := Message{ID: d.ID, Key: key}

	var err error
	if m.SenderID, err = requiredString(d.Fields, FieldFromID); err != nil {
		return Message{}, chaterr.NewDataShape(op, err)
	}
	if m.RecipientID, err = requiredString(d.Fields, FieldToID); err != nil {
		return Message{}, chaterr.NewDataShape(op, err)
	}
	if m.Text, err = requiredString(d.Fields, FieldText); err != nil {
		return Message{}, chaterr.NewDataShape(op, err)
	}
	if m.SentAt, err = requiredTime(d.Fields, FieldTimestamp); err != nil {
		return Message{}, chaterr.NewDataShape(op, err)
	}
	return m, nil
}

// DecodeSummary reads a recent_messages/{owner}/messages/{peer} document.
// The owner comes from the path and the peer is the document ID.
func DecodeSummary(d docstore.Document) (RecentMessageSummary, error) {
	op := d.Path() + " decode"
	owner, ok := OwnerFromRecentCollection(d.Collection)
	if !ok {
		return RecentMessageSummary{}, chaterr.NewDataShape(op, fmt.Errorf("not a recent message collection: %q", d.Collection))
	}
	s := RecentMessageSummary{OwnerID: owner, PeerID: d.ID}

	var err error
	if s.Text, err = requiredString(d.Fields, FieldText); err != nil {
		return RecentMessageSummary{}, chaterr.NewDataShape(op, err)
	}
	if s.SentAt, err = requiredTime(d.Fields, FieldTimestamp); err != nil {
		return RecentMessageSummary{}, chaterr.NewDataShape(op, err)
	}
	if s.PeerEmail, err = optionalString(d.Fields, FieldEmail, ""); err != nil {
		return RecentMessageSummary{}, chaterr.NewDataShape(op, err)
	}
	if s.PeerAvatarURL, err = optionalString(d.Fields, FieldProfileImageURL, ""); err != nil {
		return RecentMessageSummary{}, chaterr.NewDataShape(op, err)
	}
	return s, nil
}

func requiredString(f docstore.Fields, key string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", fmt.Errorf("field %q is missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	return s, nil
}

func optionalString(f docstore.Fields, key, def string) (string, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	return s, nil
}

func requiredTime(f docstore.Fields, key string) (time.Time, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("field %q is missing", key)
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case bson.DateTime:
		return t.Time().UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %q: %w", key, err)
		}
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("field %q is %T, want timestamp", key, v)
}

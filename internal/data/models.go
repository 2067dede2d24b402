// Package data holds the chat domain models, the document paths they are
// stored under and the typed conversion to and from document fields.
package data

import "time"

// User is a profile document at users/{uid}.
type User struct {
	ID        string
	Email     string
	AvatarURL string
}

// ConversationKey is one participant's view of a two-party thread.
type ConversationKey struct {
	Owner string
	Peer  string
}

// Message is one entry of a thread. ID is assigned by the document store.
type Message struct {
	ID          string
	Key         ConversationKey
	SenderID    string
	RecipientID string
	Text        string
	SentAt      time.Time
}

// RecentMessageSummary is the "last message with this peer" row of an
// owner's inbox. There is at most one per (OwnerID, PeerID).
type RecentMessageSummary struct {
	OwnerID       string
	PeerID        string
	Text          string
	PeerEmail     string
	PeerAvatarURL string
	SentAt        time.Time
}

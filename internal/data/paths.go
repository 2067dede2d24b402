package data

import "strings"

// Collection roots.
const (
	UsersCollection          = "users"
	MessagesRoot             = "messages"
	RecentMessagesRoot       = "recent_messages"
	recentMessagesSubcollKey = "messages"
)

// Stored field names.
const (
	FieldUID             = "uid"
	FieldEmail           = "email"
	FieldProfileImageURL = "profileImageUrl"
	FieldFromID          = "fromId"
	FieldToID            = "toId"
	FieldText            = "text"
	FieldTimestamp       = "timestamp"
)

// MessagesCollection is the thread owner keeps with peer:
// messages/{owner}/{peer}.
func MessagesCollection(owner, peer string) string {
	return MessagesRoot + "/" + owner + "/" + peer
}

// RecentCollection holds owner's summaries, one document per peer:
// recent_messages/{owner}/messages.
func RecentCollection(owner string) string {
	return RecentMessagesRoot + "/" + owner + "/" + recentMessagesSubcollKey
}

// AvatarPath is the object storage path of a user's avatar.
func AvatarPath(uid string) string {
	return "/" + uid
}

// KeyFromCollection parses messages/{owner}/{peer}.
func KeyFromCollection(collection string) (ConversationKey, bool) {
	parts := strings.Split(collection, "/")
	if len(parts) != 3 || parts[0] != MessagesRoot || parts[1] == "" || parts[2] == "" {
		return ConversationKey{}, false
	}
	return ConversationKey{Owner: parts[1], Peer: parts[2]}, true
}

// OwnerFromRecentCollection parses recent_messages/{owner}/messages.
func OwnerFromRecentCollection(collection string) (string, bool) {
	parts := strings.Split(collection, "/")
	if len(parts) != 3 || parts[0] != RecentMessagesRoot || parts[2] != recentMessagesSubcollKey || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

package chat

import (
	"strings"
	"time"
)

// User is an account known to the service.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Message is a persisted text message between two users.
//
// CreatedAt is assigned by the store at persistence time. Read reports
// whether the receiver has observed the message and only moves from false
// to true.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// Contact status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Contact is a user as seen from someone else's contact list.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
	Status string `json:"status"`
}

// ConversationKey identifies the conversation between two users. The pair is
// unordered: ConversationKey(a, b) == ConversationKey(b, a).
type ConversationKey struct {
	Low  string
	High string
}

// NewConversationKey returns the key of the conversation between a and b.
func NewConversationKey(a, b string) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey{Low: a, High: b}
}

// Has reports whether the message belongs to the conversation.
func (k ConversationKey) Has(m Message) bool {
	return NewConversationKey(m.SenderID, m.ReceiverID) == k
}

// NormalizeEmail lower-cases and trims an email address so uniqueness checks
// are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Package protocol defines the JSON envelopes exchanged over the duplex
// channel. Every frame is one object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// Client to server.
const (
	TypeRegister    = "register"
	TypeSendMessage = "sendMessage"
	TypeMarkRead    = "markRead"
)

// Server to client.
const (
	TypeMessage        = "message"
	TypeMessageSent    = "messageSent"
	TypeMessageError   = "messageError"
	TypePresenceUpdate = "presenceUpdate"
	TypeRead           = "read"
)

// Inbound is any client frame. Fields unused by a type are ignored.
type Inbound struct {
	Type            string     `json:"type"`
	UserID          string     `json:"userId,omitempty"`
	SenderID        string     `json:"senderId,omitempty"`
	ReceiverID      string     `json:"receiverId,omitempty"`
	Content         string     `json:"content,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	ClientMessageID string     `json:"clientMessageId,omitempty"`
	ContactID       string     `json:"contactId,omitempty"`
}

// Outbound is any server frame.
type Outbound struct {
	Type            string        `json:"type"`
	Message         *chat.Message `json:"message,omitempty"`
	ClientMessageID string        `json:"clientMessageId,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Online          []string      `json:"online,omitempty"`
	ReaderID        string        `json:"readerId,omitempty"`
	Count           int64         `json:"count,omitempty"`
}

// presenceFrame keeps "online" present even when nobody is online.
type presenceFrame struct {
	Type   string   `json:"type"`
	Online []string `json:"online"`
}

// Decode parses one client frame.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(raw, &in)
	return in, err
}

func encode(v any) []byte {
	// Only plain structs of strings, times and slices are encoded here;
	// json.Marshal cannot fail on them.
	b, _ := json.Marshal(v)
	return b
}

// MessageFrame is pushed to the receiver of a message.
func MessageFrame(m chat.Message) []byte {
	return encode(Outbound{Type: TypeMessage, Message: &m})
}

// SentFrame acknowledges a persisted message to its sender.
func SentFrame(m chat.Message, clientMessageID string) []byte {
	return encode(Outbound{Type: TypeMessageSent, Message: &m, ClientMessageID: clientMessageID})
}

// ErrorFrame reports a failed request to its sender.
func ErrorFrame(reason, clientMessageID string) []byte {
	return encode(Outbound{Type: TypeMessageError, Reason: reason, ClientMessageID: clientMessageID})
}

// PresenceFrame carries the full online set.
func PresenceFrame(online []string) []byte {
	if online == nil {
		online = []string{}
	}
	return encode(presenceFrame{Type: TypePresenceUpdate, Online: online})
}

// ReadFrame tells a sender that readerID has read count of their messages.
func ReadFrame(readerID string, count int64) []byte {
	return encode(Outbound{Type: TypeRead, ReaderID: readerID, Count: count})
}

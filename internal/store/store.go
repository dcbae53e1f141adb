// Package store declares the persistence contracts the delivery core and
// the account service depend on. Implementations live in the memory and
// postgres subpackages.
package store

import (
	"context"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

// Messages is the message store gateway: append-only writes and range
// reads by conversation.
type Messages interface {
	// Append persists m, assigning its ID and server timestamp, and returns
	// the stored message. Failures wrap chat.ErrStorage; on error nothing
	// may be assumed persisted.
	Append(ctx context.Context, m chat.Message) (chat.Message, error)

	// Conversation returns every message exchanged between userA and userB
	// in ascending timestamp order.
	Conversation(ctx context.Context, userA, userB string) ([]chat.Message, error)

	// MarkRead flags all unread messages sent by contactID to readerID and
	// returns how many changed.
	MarkRead(ctx context.Context, readerID, contactID string) (int64, error)
}

// Users stores accounts.
type Users interface {
	// Create stores u, assigning its ID and creation time. A duplicate
	// email fails with chat.ErrEmailTaken.
	Create(ctx context.Context, u chat.User) (chat.User, error)
	ByEmail(ctx context.Context, email string) (chat.User, error)
	ByID(ctx context.Context, id string) (chat.User, error)
	// List returns all users ordered by name.
	List(ctx context.Context) ([]chat.User, error)
}

// Store bundles both repositories behind one backend.
type Store interface {
	Messages() Messages
	Users() Users
	Close() error
}

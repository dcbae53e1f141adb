package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

func TestAppendThenConversation_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(nil)

	first, err := s.Append(ctx, chat.Message{SenderID: "a", ReceiverID: "b", Content: "hi"})
	require.NoError(t, err)
	_, err = s.Append(ctx, chat.Message{SenderID: "a", ReceiverID: "c", Content: "other"})
	require.NoError(t, err)
	second, err := s.Append(ctx, chat.Message{SenderID: "b", ReceiverID: "a", Content: "hey"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		conv, err := s.Conversation(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, conv, 2)
		assert.Equal(t, first, conv[0])
		assert.Equal(t, second, conv[1])
	}

	empty, err := s.Conversation(ctx, "x", "y")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppend_ServerAssignsFields(t *testing.T) {
	s := NewMessageStore(nil)
	m, err := s.Append(context.Background(), chat.Message{
		ID: "client-id", SenderID: "a", ReceiverID: "b", Content: "hi", Read: true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, "client-id", m.ID)
	assert.False(t, m.Read)
}

func TestAppend_Failure(t *testing.T) {
	s := NewMessageStore(nil)
	s.FailAppend = errors.New("disk full")

	_, err := s.Append(context.Background(), chat.Message{SenderID: "a", ReceiverID: "b", Content: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrStorage))
	assert.Equal(t, 0, s.Len())
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	s := NewMessageStore(nil)
	_, _ = s.Append(ctx, chat.Message{SenderID: "a", ReceiverID: "b", Content: "1"})
	_, _ = s.Append(ctx, chat.Message{SenderID: "a", ReceiverID: "b", Content: "2"})
	_, _ = s.Append(ctx, chat.Message{SenderID: "b", ReceiverID: "a", Content: "3"})

	n, err := s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	conv, err := s.Conversation(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, conv[0].Read)
	assert.True(t, conv[1].Read)
	assert.False(t, conv[2].Read)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	bob, err := s.Create(ctx, chat.User{Name: "Bob", Email: "Bob@Example.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, bob.ID)
	assert.Equal(t, "bob@example.com", bob.Email)

	_, err = s.Create(ctx, chat.User{Name: "Bobby", Email: "bob@example.com"})
	assert.True(t, errors.Is(err, chat.ErrEmailTaken))

	alice, err := s.Create(ctx, chat.User{Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)

	got, err := s.ByEmail(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	got, err = s.ByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = s.ByID(ctx, "missing")
	assert.True(t, errors.Is(err, chat.ErrNotFound))

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "Bob", users[1].Name)
}

// Package memory is an in-process store backend. It keeps everything in
// mutex-guarded maps and is used by tests and when no database is
// configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/store"
)

type Store struct {
	messages *MessageStore
	users    *UserStore
}

func New(clock *chat.Clock) *Store {
	return &Store{
		messages: NewMessageStore(clock),
		users:    NewUserStore(),
	}
}

func (s *Store) Messages() store.Messages { return s.messages }
func (s *Store) Users() store.Users       { return s.users }
func (s *Store) Close() error             { return nil }

// MessageStore keeps messages in append order. Because the clock is read
// under the same lock as the append, append order and timestamp order
// agree.
type MessageStore struct {
	mu       sync.RWMutex
	clock    *chat.Clock
	messages []chat.Message
	byConv   map[chat.ConversationKey][]int

	// FailAppend, when set, is returned (wrapped in chat.ErrStorage) by
	// Append. Tests use it to simulate an unavailable backend.
	FailAppend error
}

func NewMessageStore(clock *chat.Clock) *MessageStore {
	if clock == nil {
		clock = chat.NewClock()
	}
	return &MessageStore{
		clock:  clock,
		byConv: make(map[chat.ConversationKey][]int),
	}
}

func (s *MessageStore) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", chat.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", chat.ErrStorage, s.FailAppend)
	}

	m.ID = uuid.NewString()
	m.CreatedAt = s.clock.Now()
	m.Read = false

	key := chat.NewConversationKey(m.SenderID, m.ReceiverID)
	s.byConv[key] = append(s.byConv[key], len(s.messages))
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *MessageStore) Conversation(ctx context.Context, userA, userB string) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrStorage, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byConv[chat.NewConversationKey(userA, userB)]
	out := make([]chat.Message, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.messages[i])
	}
	return out, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, readerID, contactID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", chat.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, i := range s.byConv[chat.NewConversationKey(readerID, contactID)] {
		m := &s.messages[i]
		if m.ReceiverID == readerID && m.SenderID == contactID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]chat.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]chat.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStore) Create(_ context.Context, u chat.User) (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.Email = chat.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[u.Email]; ok {
		return chat.User{}, chat.ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *UserStore) ByEmail(_ context.Context, email string) (chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[chat.NormalizeEmail(email)]
	if !ok {
		return chat.User{}, chat.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *UserStore) ByID(_ context.Context, id string) (chat.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return chat.User{}, chat.ErrNotFound
	}
	return u, nil
}

func (s *UserStore) List(_ context.Context) ([]chat.User, error) {
	s.mu.RLock()
	users := make([]chat.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, u)
	}
	s.mu.RUnlock()

	slices.SortFunc(users, func(a, b chat.User) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return users, nil
}

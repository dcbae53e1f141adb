package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/store/memory"
)

type fakeIssuer struct {
	err error
}

func (f fakeIssuer) Issue(userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + userID, nil
}

type fakePresence map[string]bool

func (p fakePresence) IsOnline(id string) bool { return p[id] }

func newService(presence Presence) (*Service, *memory.UserStore) {
	users := memory.NewUserStore()
	return NewService(users, fakeIssuer{}, presence).WithCost(bcrypt.MinCost), users
}

func TestSignupAndLogin(t *testing.T) {
	s, _ := newService(nil)
	ctx := context.Background()

	u, err := s.Signup(ctx, " Alice ", "Alice@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	sess, err := s.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "token-"+u.ID, sess.Token)
	assert.Equal(t, u.ID, sess.User.ID)
}

func TestSignup_Validation(t *testing.T) {
	s, _ := newService(nil)
	ctx := context.Background()

	tests := []struct {
		name, user, email, password string
	}{
		{"missing name", "", "a@example.com", "password1"},
		{"bad email", "A", "not-an-email", "password1"},
		{"short password", "A", "a@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Signup(ctx, tt.user, tt.email, tt.password)
			assert.True(t, errors.Is(err, chat.ErrMalformedRequest), "got %v", err)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	s, _ := newService(nil)
	ctx := context.Background()

	_, err := s.Signup(ctx, "A", "a@example.com", "password1")
	require.NoError(t, err)
	_, err = s.Signup(ctx, "B", "A@example.com", "password2")
	assert.True(t, errors.Is(err, chat.ErrEmailTaken))
}

func TestLogin_Failures(t *testing.T) {
	s, _ := newService(nil)
	ctx := context.Background()
	_, err := s.Signup(ctx, "A", "a@example.com", "password1")
	require.NoError(t, err)

	_, err = s.Login(ctx, "a@example.com", "wrong-password")
	assert.True(t, errors.Is(err, chat.ErrUnauthorized))

	_, err = s.Login(ctx, "nobody@example.com", "password1")
	assert.True(t, errors.Is(err, chat.ErrUnauthorized))

	s.tokens = fakeIssuer{err: errors.New("no key")}
	_, err = s.Login(ctx, "a@example.com", "password1")
	assert.Error(t, err)
}

func TestContacts_ExcludesViewerAndReportsStatus(t *testing.T) {
	presence := fakePresence{}
	s, _ := newService(presence)
	ctx := context.Background()

	alice, err := s.Signup(ctx, "Alice", "alice@example.com", "password1")
	require.NoError(t, err)
	bob, err := s.Signup(ctx, "Bob Smith", "bob@example.com", "password1")
	require.NoError(t, err)
	carol, err := s.Signup(ctx, "Carol", "carol@example.com", "password1")
	require.NoError(t, err)
	presence[bob.ID] = true

	contacts, err := s.Contacts(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, bob.ID, contacts[0].ID)
	assert.Equal(t, chat.StatusOnline, contacts[0].Status)
	assert.Equal(t, "https://ui-avatars.com/api/?name=Bob+Smith", contacts[0].Avatar)
	assert.Equal(t, carol.ID, contacts[1].ID)
	assert.Equal(t, chat.StatusOffline, contacts[1].Status)
}

func TestUser(t *testing.T) {
	s, _ := newService(nil)
	ctx := context.Background()

	u, err := s.Signup(ctx, "A", "a@example.com", "password1")
	require.NoError(t, err)

	got, err := s.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = s.User(ctx, "missing")
	assert.True(t, errors.Is(err, chat.ErrNotFound))
}

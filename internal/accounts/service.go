// Package accounts handles signup, login and the contact list. Passwords
// are stored as bcrypt hashes; a successful login returns a bearer token
// for the HTTP API and the WebSocket channel.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/store"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Presence reports whether a user is online.
type Presence interface {
	IsOnline(userID string) bool
}

type Session struct {
	Token string    `json:"token"`
	User  chat.User `json:"user"`
}

type Service struct {
	users    store.Users
	tokens   TokenIssuer
	presence Presence
	cost     int
}

func NewService(users store.Users, tokens TokenIssuer, presence Presence) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		presence: presence,
		cost:     bcrypt.DefaultCost,
	}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Signup(ctx context.Context, name, email, password string) (chat.User, error) {
	name = strings.TrimSpace(name)
	email = chat.NormalizeEmail(email)

	if name == "" {
		return chat.User{}, fmt.Errorf("%w: missing name", chat.ErrMalformedRequest)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return chat.User{}, fmt.Errorf("%w: invalid email", chat.ErrMalformedRequest)
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return chat.User{}, fmt.Errorf("%w: password must be %d to %d bytes",
			chat.ErrMalformedRequest, minPasswordLength, maxPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return chat.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.users.Create(ctx, chat.User{Name: name, Email: email, PasswordHash: string(hash)})
}

// Login checks credentials. Unknown email and wrong password both return
// chat.ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return Session{}, chat.ErrUnauthorized
		}
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, chat.ErrUnauthorized
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}

	return Session{Token: token, User: user}, nil
}

func (s *Service) Users(ctx context.Context) ([]chat.User, error) {
	return s.users.List(ctx)
}

func (s *Service) User(ctx context.Context, id string) (chat.User, error) {
	return s.users.ByID(ctx, id)
}

// Contacts lists every other user with their current online status.
func (s *Service) Contacts(ctx context.Context, viewerID string) ([]chat.Contact, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]chat.Contact, 0, len(users))
	for _, u := range users {
		if u.ID == viewerID {
			continue
		}
		status := chat.StatusOffline
		if s.presence != nil && s.presence.IsOnline(u.ID) {
			status = chat.StatusOnline
		}
		contacts = append(contacts, chat.Contact{
			ID:     u.ID,
			Name:   u.Name,
			Email:  u.Email,
			Avatar: AvatarURL(u.Name),
			Status: status,
		})
	}
	return contacts, nil
}

// AvatarURL returns a generated initials avatar for name.
func AvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name)
}

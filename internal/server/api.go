package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Tyrowin/chatrelay/internal/auth"
	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/delivery"
)

const maxBodyBytes = 64 << 10

var (
	errUnauthorized = chat.ErrUnauthorized
	errRateLimited  = errors.New("rate limit exceeded")
)

type errorResponse struct {
	Error string `json:"error"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendRequest struct {
	SenderID        string     `json:"senderId"`
	ReceiverID      string     `json:"receiverId"`
	Content         string     `json:"content"`
	Timestamp       *time.Time `json:"timestamp"`
	ClientMessageID string     `json:"clientMessageId"`
}

type readResponse struct {
	Count int64 `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrSenderMismatch):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chat.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrMalformedRequest, err)
	}
	return nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireAuth resolves the bearer token to a user id before calling next.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.tokens.Verify(auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, errUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.accounts.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.logRequestError(r, "signup failed", err)
		writeError(w, err)
		return
	}

	s.logger.Info(r.Context(), "user signed up", "user", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logRequestError(r, "login failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ string) {
	users, err := s.accounts.Users(r.Context())
	if err != nil {
		s.logRequestError(r, "list users failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request, userID string) {
	contacts, err := s.accounts.Contacts(r.Context(), userID)
	if err != nil {
		s.logRequestError(r, "list contacts failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request, callerID string) {
	userID := r.PathValue("userId")
	contactID := r.PathValue("contactId")
	if callerID != userID && callerID != contactID {
		writeError(w, chat.ErrForbidden)
		return
	}

	otherID := contactID
	if callerID == contactID {
		otherID = userID
	}
	if _, err := s.accounts.User(r.Context(), otherID); err != nil {
		s.logRequestError(r, "conversation lookup failed", err)
		writeError(w, err)
		return
	}

	msgs, err := s.messages.Conversation(r.Context(), userID, contactID)
	if err != nil {
		s.logRequestError(r, "conversation query failed", err)
		if !errors.Is(err, chat.ErrStorage) {
			err = fmt.Errorf("%w: %v", chat.ErrStorage, err)
		}
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleSendMessage shares the send path, including deduplication, with
// the WebSocket channel.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, userID string) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.coordinator.Send(r.Context(), delivery.Request{
		SenderID:        userID,
		ClaimedSenderID: req.SenderID,
		ReceiverID:      req.ReceiverID,
		Content:         req.Content,
		IdempotencyKey:  req.ClientMessageID,
		ClientTimestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res.Message)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := s.markRead(r.Context(), userID, r.PathValue("contactId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readResponse{Count: n})
}

func (s *Server) logRequestError(r *http.Request, msg string, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), msg, "path", r.URL.Path, "error", err)
		return
	}
	s.logger.Debug(r.Context(), msg, "path", r.URL.Path, "error", err)
}

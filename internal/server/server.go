package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/accounts"
	"github.com/Tyrowin/chatrelay/internal/auth"
	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/config"
	"github.com/Tyrowin/chatrelay/internal/delivery"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/presence"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/registry"
	"github.com/Tyrowin/chatrelay/internal/store"
)

// Deps are the services the transport layer adapts to HTTP and WebSocket.
type Deps struct {
	Registry    *registry.Registry
	Coordinator *delivery.Coordinator
	Presence    *presence.Broadcaster
	Accounts    *accounts.Service
	Messages    store.Messages
	Tokens      *auth.Issuer
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

type Server struct {
	cfg         config.Config
	hub         *Hub
	registry    *registry.Registry
	coordinator *delivery.Coordinator
	presence    *presence.Broadcaster
	accounts    *accounts.Service
	messages    store.Messages
	tokens      *auth.Issuer
	logger      logging.Logger
	metrics     *metrics.Metrics
	origins     *originPolicy
	upgrader    websocket.Upgrader
	apiLimiter  *ipLimiter
}

// New builds the transport layer. The caller runs Hub().Run.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	cfg = cfg.Sanitize()

	s := &Server{
		cfg:         cfg,
		hub:         NewHub(logger, deps.Metrics),
		registry:    deps.Registry,
		coordinator: deps.Coordinator,
		presence:    deps.Presence,
		accounts:    deps.Accounts,
		messages:    deps.Messages,
		tokens:      deps.Tokens,
		logger:      logger,
		metrics:     deps.Metrics,
		origins:     newOriginPolicy(cfg.AllowedOrigins, logger),
		apiLimiter:  newIPLimiter(cfg.HTTPRateLimit.RPS, cfg.HTTPRateLimit.Burst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the connection hub for startup and shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// markRead flags contactID's messages to readerID as read and, if any
// changed, tells contactID over their live connection.
func (s *Server) markRead(ctx context.Context, readerID, contactID string) (int64, error) {
	if contactID == "" || contactID == readerID {
		return 0, fmt.Errorf("%w: invalid contactId", chat.ErrMalformedRequest)
	}

	n, err := s.messages.MarkRead(ctx, readerID, contactID)
	if err != nil {
		if !errors.Is(err, chat.ErrStorage) {
			err = fmt.Errorf("%w: %v", chat.ErrStorage, err)
		}
		s.logger.Error(ctx, "mark read failed", "reader", readerID, "contact", contactID, "error", err)
		return 0, err
	}

	if n > 0 {
		if h, ok := s.registry.Lookup(contactID); ok {
			if err := h.Send(protocol.ReadFrame(readerID, n)); err != nil {
				s.logger.Debug(ctx, "read receipt not delivered", "contact", contactID, "error", err)
			}
		}
	}
	return n, nil
}

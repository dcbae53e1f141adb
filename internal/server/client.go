package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/delivery"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client is one WebSocket connection. It implements registry.Handle.
//
// The connection is bound to the authenticated user at upgrade time; it
// only becomes reachable for deliveries after a register frame.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	srv            *Server
	addr           string
	authUserID     string
	maxMessageSize int64
	limiter        *rate.Limiter
	logger         logging.Logger

	// userID is set by the read pump on register and only read there.
	userID string

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client for an upgraded connection authenticated as
// authUserID.
func NewClient(conn *websocket.Conn, srv *Server, authUserID, addr string) *Client {
	cfg := srv.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            srv.hub,
		srv:            srv,
		addr:           addr,
		authUserID:     authUserID,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newConnLimiter(cfg.RateLimit),
		logger:         srv.logger.With("conn", id, "remote", addr),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues payload without blocking. A client that cannot keep up is
// closed rather than allowed to stall the sender.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return registry.ErrHandleClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.closed = true
		close(c.send)
		c.logger.Warn(context.Background(), "send buffer full, closing connection")
		return errSendBufferFull
	}
}

// close stops the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection(ctx context.Context) {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn(ctx, "error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn(ctx, "error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs a read error at a level matching how expected it is.
func (c *Client) handleReadError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn(ctx, "message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug(ctx, "client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug(ctx, "client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn(ctx, "unexpected websocket close", "error", err)
	default:
		c.logger.Warn(ctx, "websocket read error", "error", err)
	}
}

// readPump processes frames strictly in arrival order, so one connection's
// sends are persisted in the order they were written.
func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(c.hub.ctx)
	defer func() {
		cancel()
		if c.userID != "" && c.srv.registry.Unregister(c.userID, c) {
			c.logger.Info(ctx, "user went offline", "user", c.userID)
		}
		c.hub.detach(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn(ctx, "error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection(ctx)

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(ctx, err)
			return
		}

		c.processMessage(ctx, rawMessage)
	}
}

func (c *Client) processMessage(ctx context.Context, raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		c.logger.Debug(ctx, "invalid frame", "error", err)
		c.reply(ctx, protocol.ErrorFrame(chat.ErrMalformedRequest.Error(), ""))
		return
	}

	if !c.limiter.Allow() {
		c.logger.Warn(ctx, "rate limit exceeded; discarding frame", "type", in.Type)
		c.reply(ctx, protocol.ErrorFrame("rate limit exceeded", in.ClientMessageID))
		return
	}

	switch in.Type {
	case protocol.TypeRegister:
		c.handleRegister(ctx, in)
	case protocol.TypeSendMessage:
		c.handleSendMessage(ctx, in)
	case protocol.TypeMarkRead:
		c.handleMarkRead(ctx, in)
	default:
		c.reply(ctx, protocol.ErrorFrame(fmt.Sprintf("unknown frame type %q", in.Type), in.ClientMessageID))
	}
}

func (c *Client) handleRegister(ctx context.Context, in protocol.Inbound) {
	if in.UserID == "" {
		c.reply(ctx, protocol.ErrorFrame(chat.ErrMalformedRequest.Error()+": missing userId", ""))
		return
	}
	if in.UserID != c.authUserID {
		c.logger.Warn(ctx, "register rejected", "user", in.UserID, "authenticated", c.authUserID)
		c.reply(ctx, protocol.ErrorFrame(chat.ErrForbidden.Error(), ""))
		return
	}

	if c.userID == in.UserID {
		if h, ok := c.srv.registry.Lookup(in.UserID); ok && h == registry.Handle(c) {
			c.srv.presence.Notify()
			return
		}
	}

	c.userID = in.UserID
	c.srv.registry.Register(in.UserID, c)
	c.logger.Info(ctx, "user registered", "user", in.UserID)
}

func (c *Client) handleSendMessage(ctx context.Context, in protocol.Inbound) {
	if c.userID == "" {
		c.reply(ctx, protocol.ErrorFrame(chat.ErrNotRegistered.Error(), in.ClientMessageID))
		return
	}

	// Failures are reported to this connection by the coordinator.
	_, _ = c.srv.coordinator.Send(ctx, delivery.Request{
		SenderID:        c.userID,
		ClaimedSenderID: in.SenderID,
		ReceiverID:      in.ReceiverID,
		Content:         in.Content,
		IdempotencyKey:  in.ClientMessageID,
		ClientTimestamp: in.Timestamp,
		Origin:          c,
	})
}

func (c *Client) handleMarkRead(ctx context.Context, in protocol.Inbound) {
	if c.userID == "" {
		c.reply(ctx, protocol.ErrorFrame(chat.ErrNotRegistered.Error(), ""))
		return
	}

	if _, err := c.srv.markRead(ctx, c.userID, in.ContactID); err != nil {
		c.reply(ctx, protocol.ErrorFrame(err.Error(), ""))
	}
}

func (c *Client) reply(ctx context.Context, frame []byte) {
	if err := c.Send(frame); err != nil {
		c.logger.Debug(ctx, "reply not delivered", "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn(context.Background(), "error closing connection in writePump", "error", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn(context.Background(), "error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug(context.Background(), "error writing close message", "error", err)
	}
	return false
}

// writeTextMessage writes message as its own text frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Debug(context.Background(), "error writing message", "error", err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn(context.Background(), "error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug(context.Background(), "error writing ping message", "error", err)
		return false
	}
	return true
}

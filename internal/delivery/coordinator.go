// Package delivery implements the send path: persist a message, push it to
// the receiver's live connection if there is one, and acknowledge the
// sender.
//
// Durability is the success criterion. A send fails only when the message
// could not be persisted; a missing or broken receiver connection is a
// normal outcome reported as Delivered=false.
package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/registry"
	"github.com/Tyrowin/chatrelay/internal/store"
)

const (
	DefaultDedupWindow    = 5 * time.Second
	DefaultPersistTimeout = 5 * time.Second
)

// Lookuper resolves a user to their live connection.
type Lookuper interface {
	Lookup(userID string) (registry.Handle, bool)
}

// Request is one logical send.
type Request struct {
	// SenderID is the authenticated identity of the caller.
	SenderID string
	// ClaimedSenderID is the sender id carried in the payload, if any. It
	// must match SenderID.
	ClaimedSenderID string
	ReceiverID      string
	Content         string
	// IdempotencyKey is the client-supplied token for this logical send.
	IdempotencyKey string
	// ClientTimestamp is informational; the stored timestamp is always
	// assigned by the server.
	ClientTimestamp *time.Time
	// Origin, when set, receives the messageSent or messageError frame.
	Origin registry.Handle
}

// Result describes a completed send.
type Result struct {
	Message   chat.Message
	Delivered bool
	// Duplicate is set when the request repeated a send already persisted
	// within the dedup window; Message is the original.
	Duplicate bool
}

type Config struct {
	DedupWindow    time.Duration
	PersistTimeout time.Duration
}

type Coordinator struct {
	messages       store.Messages
	registry       Lookuper
	logger         logging.Logger
	metrics        *metrics.Metrics
	persistTimeout time.Duration

	inflight singleflight.Group
	recent   *ttlcache.Cache[string, chat.Message]
}

func New(messages store.Messages, reg Lookuper, cfg Config, logger logging.Logger, m *metrics.Metrics) *Coordinator {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Coordinator{
		messages:       messages,
		registry:       reg,
		logger:         logger,
		metrics:        m,
		persistTimeout: cfg.PersistTimeout,
		recent: ttlcache.New[string, chat.Message](
			ttlcache.WithTTL[string, chat.Message](cfg.DedupWindow),
			ttlcache.WithDisableTouchOnHit[string, chat.Message](),
		),
	}
}

// Run evicts expired dedup entries until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	go c.recent.Start()
	<-ctx.Done()
	c.recent.Stop()
}

type outcome struct {
	msg       chat.Message
	delivered bool
	duplicate bool
}

// Send runs one request through persist, deliver and acknowledge.
//
// Concurrent requests for the same logical send are coalesced, and repeats
// within the dedup window return the first persisted message without
// pushing it to the receiver again. Every caller with an Origin is
// acknowledged.
func (c *Coordinator) Send(ctx context.Context, req Request) (Result, error) {
	log := c.logger.With("sender", req.SenderID, "receiver", req.ReceiverID)
	st := newTracker(ctx, log)

	if err := validate(req); err != nil {
		c.metrics.Message(metrics.OutcomeRejected)
		st.to(StateFailed, "error", err)
		c.reply(ctx, req, protocol.ErrorFrame(err.Error(), req.IdempotencyKey))
		return Result{}, err
	}

	key := dedupKey(req)
	if m, ok := c.remembered(key); ok {
		return c.acknowledge(ctx, st, req, outcome{msg: m, duplicate: true}), nil
	}

	executed := false
	v, err, _ := c.inflight.Do(key, func() (any, error) {
		executed = true
		if m, ok := c.remembered(key); ok {
			return outcome{msg: m, duplicate: true}, nil
		}

		st.to(StatePersisting)
		msg, err := c.persist(ctx, req)
		if err != nil {
			return nil, err
		}
		st.to(StatePersisted, "message", msg.ID)
		c.recent.Set(key, msg, ttlcache.DefaultTTL)

		st.to(StateDelivering)
		return outcome{msg: msg, delivered: c.deliver(ctx, log, msg)}, nil
	})
	if err != nil {
		c.metrics.Message(metrics.OutcomeFailed)
		st.to(StateFailed, "error", err)
		log.Error(ctx, "message not persisted", "error", err)
		c.reply(ctx, req, protocol.ErrorFrame("failed to send message", req.IdempotencyKey))
		return Result{}, err
	}

	o := v.(outcome)
	if !executed {
		o.duplicate = true
		o.delivered = false
	}
	return c.acknowledge(ctx, st, req, o), nil
}

func validate(req Request) error {
	if err := chat.ValidateMessage(req.SenderID, req.ReceiverID, req.Content); err != nil {
		return err
	}
	if req.ClaimedSenderID != "" && req.ClaimedSenderID != req.SenderID {
		return chat.ErrSenderMismatch
	}
	return nil
}

func (c *Coordinator) persist(ctx context.Context, req Request) (chat.Message, error) {
	// A sender going away must not abort a write that already started.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	msg, err := c.messages.Append(pctx, chat.Message{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
	})
	if err != nil {
		if !errors.Is(err, chat.ErrStorage) {
			err = fmt.Errorf("%w: %v", chat.ErrStorage, err)
		}
		return chat.Message{}, err
	}
	return msg, nil
}

// deliver pushes msg to the receiver's connection. A failed push means the
// receiver is effectively offline; it never fails the send.
func (c *Coordinator) deliver(ctx context.Context, log logging.Logger, msg chat.Message) bool {
	h, ok := c.registry.Lookup(msg.ReceiverID)
	if !ok {
		c.metrics.Delivery(metrics.DeliveryOffline)
		log.Debug(ctx, "recipient offline", "message", msg.ID)
		return false
	}

	if err := h.Send(protocol.MessageFrame(msg)); err != nil {
		c.metrics.Delivery(metrics.DeliveryPushFailed)
		log.Warn(ctx, "live delivery failed, treating recipient as offline",
			"message", msg.ID, "conn", h.ID(), "error", err)
		return false
	}

	c.metrics.Delivery(metrics.DeliveryDelivered)
	return true
}

func (c *Coordinator) acknowledge(ctx context.Context, st *tracker, req Request, o outcome) Result {
	if o.duplicate {
		c.metrics.Message(metrics.OutcomeDuplicate)
		st.log.Info(ctx, "duplicate send suppressed", "message", o.msg.ID)
	} else {
		c.metrics.Message(metrics.OutcomePersisted)
	}

	st.to(StateAcknowledging)
	c.reply(ctx, req, protocol.SentFrame(o.msg, req.IdempotencyKey))
	st.to(StateDone, "delivered", o.delivered)

	return Result{Message: o.msg, Delivered: o.delivered, Duplicate: o.duplicate}
}

func (c *Coordinator) reply(ctx context.Context, req Request, frame []byte) {
	if req.Origin == nil {
		return
	}
	if err := req.Origin.Send(frame); err != nil {
		c.logger.Debug(ctx, "sender acknowledgement not delivered", "conn", req.Origin.ID(), "error", err)
	}
}

func (c *Coordinator) remembered(key string) (chat.Message, bool) {
	item := c.recent.Get(key)
	if item == nil {
		return chat.Message{}, false
	}
	return item.Value(), true
}

// dedupKey prefers the client token; without one it fingerprints the
// request so an identical resubmission inside the window is caught.
func dedupKey(req Request) string {
	if req.IdempotencyKey != "" {
		return "token:" + req.SenderID + "\x00" + req.IdempotencyKey
	}

	h := sha256.New()
	h.Write([]byte(req.SenderID))
	h.Write([]byte{0})
	h.Write([]byte(req.ReceiverID))
	h.Write([]byte{0})
	h.Write([]byte(req.Content))
	h.Write([]byte{0})
	if req.ClientTimestamp != nil {
		h.Write([]byte(req.ClientTimestamp.UTC().Format(time.RFC3339Nano)))
	}
	return "fp:" + hex.EncodeToString(h.Sum(nil))
}

type tracker struct {
	ctx   context.Context
	log   logging.Logger
	state State
}

func newTracker(ctx context.Context, log logging.Logger) *tracker {
	return &tracker{ctx: ctx, log: log, state: StateReceived}
}

func (t *tracker) to(next State, args ...any) {
	t.log.Debug(t.ctx, "send state", append([]any{"from", t.state.String(), "to", next.String()}, args...)...)
	t.state = next
}

// Package presence pushes the online user set to every registered
// connection whenever the registry changes.
package presence

import (
	"context"

	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/registry"
)

// Source is the registry view the broadcaster reads.
type Source interface {
	Entries() []registry.Entry
	Changes() <-chan struct{}
}

type Broadcaster struct {
	source  Source
	force   chan struct{}
	logger  logging.Logger
	metrics *metrics.Metrics
}

func New(source Source, logger logging.Logger, m *metrics.Metrics) *Broadcaster {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Broadcaster{
		source:  source,
		force:   make(chan struct{}, 1),
		logger:  logger,
		metrics: m,
	}
}

// Notify requests a broadcast even if no registry change is pending.
func (b *Broadcaster) Notify() {
	select {
	case b.force <- struct{}{}:
	default:
	}
}

// Run is the broadcaster's event loop. Each wakeup reads the registry
// after the triggering change, so an update is never older than the event
// that caused it.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.source.Changes():
		case <-b.force:
		}
		b.Broadcast(ctx)
	}
}

// Broadcast sends the current online set to every registered connection.
// Delivery is best effort: a connection being torn down just misses this
// update.
func (b *Broadcaster) Broadcast(ctx context.Context) {
	entries := b.source.Entries()
	online := make([]string, len(entries))
	for i, e := range entries {
		online[i] = e.UserID
	}
	frame := protocol.PresenceFrame(online)

	failed := 0
	for _, e := range entries {
		if err := e.Handle.Send(frame); err != nil {
			failed++
		}
	}

	b.metrics.PresenceBroadcast()
	b.logger.Debug(ctx, "presence broadcast", "online", len(online), "failed", failed)
}

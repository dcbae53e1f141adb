// Package registry maps user identifiers to the live connection that
// currently represents them.
//
// At most one entry exists per user. A new registration replaces the old
// one, and removal is compare-and-delete: a disconnect signal for a handle
// that has already been superseded leaves the newer entry in place. All
// mutations go through one mutex, so a register and a stale unregister for
// the same user can never interleave.
package registry

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
)

// ErrHandleClosed is returned by Handle.Send once the channel behind the
// handle has closed.
var ErrHandleClosed = errors.New("connection closed")

// Handle is an opaque reference to a live duplex channel.
//
// Send must not block: it either queues the payload for the connection's
// writer or fails. Handles are compared by identity, so implementations
// should be pointer types.
type Handle interface {
	ID() string
	Send(payload []byte) error
}

// Entry is one (user, handle) pair.
type Entry struct {
	UserID string
	Handle Handle
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
	changes chan struct{}
	logger  logging.Logger
	metrics *metrics.Metrics
}

func New(logger logging.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		entries: make(map[string]Handle),
		changes: make(chan struct{}, 1),
		logger:  logger,
		metrics: m,
	}
}

// Register binds userID to h, replacing any previous handle.
func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	prev, replaced := r.entries[userID]
	r.entries[userID] = h
	r.metrics.SetOnlineUsers(len(r.entries))
	r.mu.Unlock()

	if replaced && prev != h {
		r.logger.Info(context.Background(), "connection replaced",
			"user", userID, "old_conn", prev.ID(), "new_conn", h.ID())
	} else {
		r.logger.Debug(context.Background(), "connection registered", "user", userID, "conn", h.ID())
	}
	r.notify()
}

// Lookup returns the handle currently registered for userID.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.entries[userID]
	return h, ok
}

// Unregister removes the entry for userID only if it still holds h. It
// reports whether an entry was removed; false means the disconnect was
// stale (or the user was never registered) and nothing changed.
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	current, ok := r.entries[userID]
	if !ok || current != h {
		r.mu.Unlock()
		if ok {
			r.logger.Debug(context.Background(), "stale disconnect ignored",
				"user", userID, "conn", h.ID(), "current_conn", current.ID())
		}
		return false
	}
	delete(r.entries, userID)
	r.metrics.SetOnlineUsers(len(r.entries))
	r.mu.Unlock()

	r.logger.Debug(context.Background(), "connection unregistered", "user", userID, "conn", h.ID())
	r.notify()
	return true
}

// Snapshot returns the online user ids, sorted, as of a single instant.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Entries returns every (user, handle) pair as of a single instant, sorted
// by user id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for id, h := range r.entries {
		entries = append(entries, Entry{UserID: id, Handle: h})
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return entries
}

// IsOnline reports whether userID has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Changes is signalled after every successful Register or Unregister.
// Signals coalesce: a receiver that falls behind sees one pending signal,
// and state read after receiving it is at least as new as the mutation
// that raised it.
func (r *Registry) Changes() <-chan struct{} {
	return r.changes
}

func (r *Registry) notify() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

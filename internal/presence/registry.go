// Package presence tracks which users currently have a live delivery channel.
package presence

import (
	"sync"

	"github.com/careline/careline/internal/event"
)

// Channel is one live connection able to receive events.
type Channel interface {
	// ID identifies the connection; it is unique for the process lifetime.
	ID() string
	// Deliver queues ev without blocking and reports whether it was accepted.
	Deliver(ev event.Outbound) bool
}

// Registry maps user ids to their current channel. The last registration for
// a user wins and a superseded channel is left open.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register associates userID with ch, replacing any previous channel. It
// returns the replaced channel, if any.
func (r *Registry) Register(userID string, ch Channel) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.channels[userID]
	r.channels[userID] = ch
	return prev, ok
}

// Unregister removes userID only while it is still bound to ch. A disconnect
// from a superseded channel leaves the newer registration in place.
func (r *Registry) Unregister(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.channels[userID]
	if !ok || cur.ID() != ch.ID() {
		return false
	}
	delete(r.channels, userID)
	return true
}

// Lookup returns the live channel registered for userID.
func (r *Registry) Lookup(userID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[userID]
	return ch, ok
}

// IsOnline reports whether userID has a registered channel.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Each calls fn for a snapshot of the registry, outside the lock.
func (r *Registry) Each(fn func(userID string, ch Channel)) {
	r.mu.RLock()
	snapshot := make(map[string]Channel, len(r.channels))
	for id, ch := range r.channels {
		snapshot[id] = ch
	}
	r.mu.RUnlock()

	for id, ch := range snapshot {
		fn(id, ch)
	}
}

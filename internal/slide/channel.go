package slide

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slidecast/backend/internal/session"
)

// ErrSessionNotFound covers unknown and expired sessions alike.
var ErrSessionNotFound = errors.New("slide: session not found")

// Snapshot is the latest published slide for a session. Payload is opaque to
// this layer; its shape belongs to the content producer.
type Snapshot struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Channel holds at most one snapshot per session, last-write-wins. Remote
// consumers poll Latest; in-process consumers Subscribe for push delivery.
// Both paths read the same cell.
type Channel struct {
	mu       sync.RWMutex
	sessions *session.Registry
	current  map[string]Snapshot
	watchers map[string]map[chan Snapshot]struct{}
}

func NewChannel(sessions *session.Registry) *Channel {
	return &Channel{
		sessions: sessions,
		current:  make(map[string]Snapshot),
		watchers: make(map[string]map[chan Snapshot]struct{}),
	}
}

// Publish replaces the session's snapshot unconditionally and notifies
// in-process subscribers. No history is retained.
func (c *Channel) Publish(sessionID string, payload json.RawMessage) (Snapshot, error) {
	if _, ok := c.sessions.Get(sessionID); !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	snap := Snapshot{
		ID:          uuid.NewString(),
		Payload:     payload,
		PublishedAt: c.sessions.Now(),
	}

	c.mu.Lock()
	c.current[sessionID] = snap
	for ch := range c.watchers[sessionID] {
		// Drop-and-replace on the buffer-1 channel: a subscriber that
		// hasn't drained yet only ever sees the newest snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	c.mu.Unlock()

	return snap, nil
}

// Latest returns the current snapshot. ok is false if the session is invalid
// or nothing was ever published.
func (c *Channel) Latest(sessionID string) (Snapshot, bool) {
	if _, ok := c.sessions.Get(sessionID); !ok {
		return Snapshot{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.current[sessionID]
	return snap, ok
}

// Subscribe registers an in-process consumer for the session's publishes.
// The returned channel carries the latest snapshot only; intermediate
// snapshots may be skipped, same as the polling path. The channel is closed
// by cancel or when the session's state is dropped, whichever comes first.
// cancel is idempotent.
func (c *Channel) Subscribe(sessionID string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	if c.watchers[sessionID] == nil {
		c.watchers[sessionID] = make(map[chan Snapshot]struct{})
	}
	c.watchers[sessionID][ch] = struct{}{}
	// Seed with the current snapshot so a late subscriber starts from the
	// present state instead of waiting for the next publish.
	if snap, ok := c.current[sessionID]; ok {
		ch <- snap
	}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		set, ok := c.watchers[sessionID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(c.watchers, sessionID)
		}
	}
	return ch, cancel
}

// Drop discards the session's snapshot and closes its subscriber channels.
// Idempotent.
func (c *Channel) Drop(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.current, sessionID)
	for ch := range c.watchers[sessionID] {
		close(ch)
	}
	delete(c.watchers, sessionID)
}

// SessionIDs lists every session holding slide state, orphans included.
func (c *Channel) SessionIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.current))
	for id := range c.current {
		seen[id] = struct{}{}
	}
	for id := range c.watchers {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds every session's lifetime. Expiry is absolute from
// creation; activity does not extend it.
const DefaultTTL = 4 * time.Hour

// Session identifies one presenter/audience pairing. It is live while
// now < ExpiresAt; no other component mutates ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Registry owns session identity and expiry. All access goes through the
// registry so expiry is enforced on every read, not just by the sweeper.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time // swapped out in tests
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Now returns the registry's clock reading. Collaborators stamp their own
// records through this so the whole engine shares one time source.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Create registers a fresh session. Ids are random uuids, so collisions with
// live sessions are not a practical concern.
func (r *Registry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	copy := *s
	return &copy
}

// Get returns the session if it is present and live. An expired entry is
// evicted as a side effect: the periodic sweep alone cannot keep a session
// invisible to readers the instant its TTL elapses.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.sessions, id)
		return nil, false
	}
	copy := *s
	return &copy, true
}

// Delete removes the session. Idempotent.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// EvictExpired removes every session whose TTL has elapsed and returns the
// evicted ids so callers can cascade cleanup of per-session state.
func (r *Registry) EvictExpired() []string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Len reports the number of stored sessions, expired entries included until
// they are evicted.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

package feedback

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slidecast/backend/internal/session"
)

var (
	// ErrSessionNotFound covers both unknown and expired sessions; callers
	// never learn which.
	ErrSessionNotFound = errors.New("feedback: session not found")
	// ErrEmptyText rejects feedback that is empty after trimming.
	ErrEmptyText = errors.New("feedback: text is empty")
)

// Item is one audience message. Items are append-only and never mutated once
// stored.
type Item struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log holds each session's ordered feedback. Entries are bounded by the
// session TTL rather than a count: sessions are short-lived and evicted
// wholesale, so there is no compaction.
type Log struct {
	mu       sync.RWMutex
	sessions *session.Registry
	items    map[string][]Item
}

func NewLog(sessions *session.Registry) *Log {
	return &Log{
		sessions: sessions,
		items:    make(map[string][]Item),
	}
}

// Append validates the session and text, stores a fresh item, and returns it.
// The item is visible to Query as soon as Append returns.
func (l *Log) Append(sessionID, text string) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, ErrEmptyText
	}
	if _, ok := l.sessions.Get(sessionID); !ok {
		return Item{}, ErrSessionNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	item := Item{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		Timestamp: l.sessions.Now(),
	}
	// Timestamps must be non-decreasing in append order. Clamp against the
	// tail in case the wall clock steps backwards.
	if prev := l.items[sessionID]; len(prev) > 0 {
		if last := prev[len(prev)-1].Timestamp; item.Timestamp.Before(last) {
			item.Timestamp = last
		}
	}
	l.items[sessionID] = append(l.items[sessionID], item)
	return item, nil
}

// Query returns the session's items with Timestamp > since, in append order.
// A zero since returns the whole log. Invalid or expired sessions yield an
// empty result: this is a poll path and pollers degrade rather than fail.
func (l *Log) Query(sessionID string, since time.Time) []Item {
	if _, ok := l.sessions.Get(sessionID); !ok {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.items[sessionID]
	// Timestamps are non-decreasing, so the first item past the watermark
	// splits the log.
	i := sort.Search(len(all), func(i int) bool {
		return all[i].Timestamp.After(since)
	})
	if i == len(all) {
		return nil
	}
	out := make([]Item, len(all)-i)
	copy(out, all[i:])
	return out
}

// Drop discards all state for the session. Idempotent.
func (l *Log) Drop(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, sessionID)
}

// SessionIDs lists every session with stored feedback, including sessions
// the registry has already evicted. The sweeper uses this to reap orphans.
func (l *Log) SessionIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.items))
	for id := range l.items {
		ids = append(ids, id)
	}
	return ids
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/session"
)

const (
	DefaultKeepaliveInterval = 15 * time.Second
	DefaultPollInterval      = 2 * time.Second
)

// ErrSessionNotFound rejects a connection whose session is invalid at
// connect time.
var ErrSessionNotFound = errors.New("stream: session not found")

// Events drives live feedback delivery. Each connection runs two recurring
// tasks under a single cancellation signal: a keepalive emitter and a delta
// poll that queries the log above the connection's watermark.
type Events struct {
	sessions  *session.Registry
	log       *feedback.Log
	keepalive time.Duration
	poll      time.Duration
	active    atomic.Int64
}

func NewEvents(sessions *session.Registry, log *feedback.Log, keepalive, poll time.Duration) *Events {
	if keepalive <= 0 {
		keepalive = DefaultKeepaliveInterval
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Events{
		sessions:  sessions,
		log:       log,
		keepalive: keepalive,
		poll:      poll,
	}
}

// ActiveTasks reports the number of running keepalive/poll loops across all
// connections. It returns to its prior value once a connection has fully
// torn down, which makes leak checks cheap in tests.
func (e *Events) ActiveTasks() int64 {
	return e.active.Load()
}

// Run serves one connection until the consumer cancels ctx, the session
// ends, or the sink fails. The session must be valid at connect time or Run
// returns ErrSessionNotFound before emitting anything.
//
// Whatever the exit path, both loops are cancelled and Run returns only
// after they have stopped: no timer owned by this connection fires after
// Run returns.
func (e *Events) Run(ctx context.Context, sessionID string, sink Sink) error {
	if _, ok := e.sessions.Get(sessionID); !ok {
		return ErrSessionNotFound
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errc <- e.keepaliveLoop(ctx, sink)
	}()
	go func() {
		defer wg.Done()
		errc <- e.pollLoop(ctx, sessionID, sink)
	}()

	// First loop to finish decides the outcome; the cancel tears down the
	// other.
	err := <-errc
	cancel()
	wg.Wait()
	return err
}

func (e *Events) keepaliveLoop(ctx context.Context, sink Sink) error {
	e.active.Add(1)
	defer e.active.Add(-1)

	ticker := time.NewTicker(e.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sink.Send(Event{Type: EventKeepalive}); err != nil {
				return fmt.Errorf("stream: keepalive send: %w", err)
			}
		}
	}
}

func (e *Events) pollLoop(ctx context.Context, sessionID string, sink Sink) (err error) {
	e.active.Add(1)
	defer e.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream: poll panic: %v", r)
		}
	}()

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	// Watermark lives only as long as this connection. It starts at zero,
	// so a reconnecting consumer re-observes history; delivery is
	// at-least-once and consumers dedupe by item id.
	var watermark time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, ok := e.sessions.Get(sessionID); !ok {
				// Session expired or was deleted: a clean close,
				// not an error.
				return nil
			}
			for _, item := range e.log.Query(sessionID, watermark) {
				item := item
				if err := sink.Send(Event{Type: EventFeedback, Payload: &item}); err != nil {
					return fmt.Errorf("stream: feedback send: %w", err)
				}
				watermark = item.Timestamp
			}
		}
	}
}

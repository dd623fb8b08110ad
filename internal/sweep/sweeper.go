package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/observe"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
)

const DefaultInterval = 30 * time.Minute

// Sweeper evicts expired sessions on a fixed interval and cascades the
// eviction to feedback and slide state. It is a memory backstop: the
// registry's lazy check already enforces expiry on every read path, so the
// sweeper only has to reclaim sessions nobody queries again.
type Sweeper struct {
	sessions *session.Registry
	log      *feedback.Log
	slides   *slide.Channel
	interval time.Duration
}

func New(sessions *session.Registry, log *feedback.Log, slides *slide.Channel, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		sessions: sessions,
		log:      log,
		slides:   slides,
		interval: interval,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Info().Int("evicted", n).Msg("sweep evicted expired sessions")
			}
		}
	}
}

// Sweep runs one eviction pass and returns the number of sessions whose
// state was reclaimed. One session's cleanup never affects another's.
func (s *Sweeper) Sweep() int {
	evicted := s.sessions.EvictExpired()
	for _, id := range evicted {
		s.dropState(id)
	}

	// Per-session state can outlive its registry entry when the lazy check
	// on a read path evicted the session first. Reap those orphans too.
	reclaimed := make(map[string]bool, len(evicted))
	for _, id := range evicted {
		reclaimed[id] = true
	}
	for _, id := range s.orphans() {
		if !reclaimed[id] {
			s.dropState(id)
			reclaimed[id] = true
		}
	}

	if len(reclaimed) > 0 {
		observe.RecordSessionEvicted("sweep", len(reclaimed))
	}
	return len(reclaimed)
}

func (s *Sweeper) orphans() []string {
	var ids []string
	for _, id := range s.log.SessionIDs() {
		if _, ok := s.sessions.Get(id); !ok {
			ids = append(ids, id)
		}
	}
	for _, id := range s.slides.SessionIDs() {
		if _, ok := s.sessions.Get(id); !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Sweeper) dropState(id string) {
	defer func() {
		// A panic cleaning one session must not abort the sweep.
		if r := recover(); r != nil {
			log.Error().Str("session", id).Interface("panic", r).Msg("sweep: drop state panicked")
		}
	}()
	s.log.Drop(id)
	s.slides.Drop(id)
}

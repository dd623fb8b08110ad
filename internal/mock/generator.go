package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
)

var demoSlides = []json.RawMessage{
	json.RawMessage(`{"headline":"Welcome","bullets":["hit the audience link to follow along"]}`),
	json.RawMessage(`{"headline":"The Problem","bullets":["slides drift out of sync","feedback gets lost in chat"]}`),
	json.RawMessage(`{"headline":"The Fix","bullets":["one session","one live stream","latest slide always wins"]}`),
	json.RawMessage(`{"headline":"Questions?","bullets":["drop feedback below"]}`),
}

var demoFeedback = []string{
	"can you zoom the diagram?",
	"this clicked for me, thanks",
	"what happens on reconnect?",
	"slide 2 typo: 'synch'",
	"+1 to the last question",
}

// Generator drives synthetic presenter and audience traffic through the real
// engine so the live path can be exercised without any clients attached.
type Generator struct {
	sessions *session.Registry
	log      *feedback.Log
	slides   *slide.Channel
}

func NewGenerator(sessions *session.Registry, fblog *feedback.Log, slides *slide.Channel) *Generator {
	return &Generator{
		sessions: sessions,
		log:      fblog,
		slides:   slides,
	}
}

// Start creates a demo session and publishes slides and feedback on fixed
// cadences until ctx is cancelled or the session expires.
func (g *Generator) Start(ctx context.Context) {
	sess := g.sessions.Create()
	log.Info().Str("session", sess.ID).Str("audiencePath", "/s/"+sess.ID).Msg("demo session created")

	// An in-process subscriber, same as an embedded audience view would use.
	updates, cancel := g.slides.Subscribe(sess.ID)
	defer cancel()
	go func() {
		for snap := range updates {
			log.Debug().Str("slide", snap.ID).Msg("demo subscriber saw slide")
		}
	}()

	slideTicker := time.NewTicker(3 * time.Second)
	defer slideTicker.Stop()
	feedbackTicker := time.NewTicker(5 * time.Second)
	defer feedbackTicker.Stop()

	slideIdx, feedbackIdx := 0, 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-slideTicker.C:
			if _, err := g.slides.Publish(sess.ID, demoSlides[slideIdx%len(demoSlides)]); err != nil {
				log.Info().Err(err).Msg("demo session ended")
				return
			}
			slideIdx++
		case <-feedbackTicker.C:
			text := fmt.Sprintf("%s (#%d)", demoFeedback[feedbackIdx%len(demoFeedback)], feedbackIdx+1)
			if _, err := g.log.Append(sess.ID, text); err != nil {
				log.Info().Err(err).Msg("demo session ended")
				return
			}
			feedbackIdx++
		}
	}
}

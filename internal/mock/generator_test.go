package mock

import (
	"context"
	"testing"
	"time"

	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
)

func TestGeneratorCreatesSessionAndStops(t *testing.T) {
	reg := session.NewRegistry(session.DefaultTTL)
	fblog := feedback.NewLog(reg)
	slides := slide.NewChannel(reg)
	g := NewGenerator(reg, fblog, slides)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for reg.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("generator never created a session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator did not stop on cancel")
	}
}

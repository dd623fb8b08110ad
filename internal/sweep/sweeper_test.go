package sweep

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/slidecast/backend/internal/feedback"
	"github.com/slidecast/backend/internal/session"
	"github.com/slidecast/backend/internal/slide"
)

func newFixture(ttl time.Duration) (*Sweeper, *session.Registry, *feedback.Log, *slide.Channel) {
	reg := session.NewRegistry(ttl)
	log := feedback.NewLog(reg)
	slides := slide.NewChannel(reg)
	return New(reg, log, slides, time.Minute), reg, log, slides
}

func TestSweepEvictsExpiredAndCascades(t *testing.T) {
	sw, reg, log, slides := newFixture(20 * time.Millisecond)

	s := reg.Create()
	log.Append(s.ID, "doomed")
	slides.Publish(s.ID, json.RawMessage(`{"headline":"doomed"}`))

	time.Sleep(30 * time.Millisecond)
	if n := sw.Sweep(); n != 1 {
		t.Fatalf("Sweep reclaimed %d sessions, want 1", n)
	}

	if _, ok := reg.Get(s.ID); ok {
		t.Error("expired session survived the sweep")
	}
	if ids := log.SessionIDs(); len(ids) != 0 {
		t.Errorf("feedback state survived the sweep: %v", ids)
	}
	if ids := slides.SessionIDs(); len(ids) != 0 {
		t.Errorf("slide state survived the sweep: %v", ids)
	}
}

func TestSweepLeavesLiveSessionsAlone(t *testing.T) {
	sw, reg, log, slides := newFixture(time.Hour)

	s := reg.Create()
	item, _ := log.Append(s.ID, "still here")
	slides.Publish(s.ID, json.RawMessage(`{}`))

	if n := sw.Sweep(); n != 0 {
		t.Fatalf("Sweep reclaimed %d sessions, want 0", n)
	}
	got := log.Query(s.ID, time.Time{})
	if len(got) != 1 || got[0].ID != item.ID {
		t.Error("live session's feedback damaged by sweep")
	}
	if _, ok := slides.Latest(s.ID); !ok {
		t.Error("live session's slide dropped by sweep")
	}
}

func TestSweepReapsOrphanedState(t *testing.T) {
	sw, reg, log, slides := newFixture(20 * time.Millisecond)

	s := reg.Create()
	log.Append(s.ID, "orphan")
	slides.Publish(s.ID, json.RawMessage(`{}`))

	// The lazy check on a read path evicts the registry entry first,
	// leaving feedback/slide state behind.
	time.Sleep(30 * time.Millisecond)
	if _, ok := reg.Get(s.ID); ok {
		t.Fatal("session should have lazily expired")
	}

	if n := sw.Sweep(); n != 1 {
		t.Fatalf("Sweep reclaimed %d orphans, want 1", n)
	}
	if ids := log.SessionIDs(); len(ids) != 0 {
		t.Errorf("orphaned feedback state not reaped: %v", ids)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sw, _, _, _ := newFixture(time.Hour)
	sw.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

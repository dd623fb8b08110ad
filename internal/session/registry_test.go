package session

import (
	"sync"
	"testing"
	"time"
)

// fakeClock returns a registry whose clock can be advanced manually.
func fakeClock(r *Registry) func(d time.Duration) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := base
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
}

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	s := r.Create()

	if s.ID == "" {
		t.Fatal("Create returned empty id")
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != DefaultTTL {
		t.Errorf("TTL = %v, want %v", got, DefaultTTL)
	}

	got, ok := r.Get(s.ID)
	if !ok {
		t.Fatal("Get returned ok=false for freshly created session")
	}
	if got.ID != s.ID || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("Get returned unexpected session: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	if s, ok := r.Get("nonexistent"); ok || s != nil {
		t.Errorf("Get for missing id = (%v, %v), want (nil, false)", s, ok)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	s := r.Create()

	got, _ := r.Get(s.ID)
	got.ExpiresAt = got.ExpiresAt.Add(-time.Hour)

	got2, _ := r.Get(s.ID)
	if !got2.ExpiresAt.Equal(s.ExpiresAt) {
		t.Error("Get did not return a copy; mutation leaked into registry")
	}
}

func TestLazyExpiry(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	advance := fakeClock(r)
	s := r.Create()

	advance(time.Second)
	if _, ok := r.Get(s.ID); !ok {
		t.Fatal("session expired 1s after creation")
	}

	advance(DefaultTTL) // now 4h1s past creation
	if _, ok := r.Get(s.ID); ok {
		t.Fatal("Get returned expired session")
	}
	if r.Len() != 0 {
		t.Errorf("expired session not evicted on read, Len = %d", r.Len())
	}
}

func TestGetAtExactExpiry(t *testing.T) {
	r := NewRegistry(time.Hour)
	advance := fakeClock(r)
	s := r.Create()

	// now == expiresAt is no longer live.
	advance(time.Hour)
	if _, ok := r.Get(s.ID); ok {
		t.Error("session live at now == expiresAt")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	s := r.Create()

	r.Delete(s.ID)
	if _, ok := r.Get(s.ID); ok {
		t.Error("session still present after Delete")
	}
	r.Delete(s.ID) // must not panic or fail
	r.Delete("never-existed")
}

func TestEvictExpired(t *testing.T) {
	r := NewRegistry(time.Hour)
	advance := fakeClock(r)

	old1 := r.Create()
	old2 := r.Create()
	advance(30 * time.Minute)
	young := r.Create()
	advance(31 * time.Minute) // old1/old2 past TTL, young at 31m

	evicted := r.EvictExpired()
	if len(evicted) != 2 {
		t.Fatalf("EvictExpired returned %d ids, want 2: %v", len(evicted), evicted)
	}
	want := map[string]bool{old1.ID: true, old2.ID: true}
	for _, id := range evicted {
		if !want[id] {
			t.Errorf("unexpected evicted id %s", id)
		}
	}
	if _, ok := r.Get(young.ID); !ok {
		t.Error("live session evicted by sweep")
	}
}

func TestUniqueIDs(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := r.Create()
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry(DefaultTTL)
	s := r.Create()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Create()
				r.Get(s.ID)
				r.EvictExpired()
			}
		}()
	}
	wg.Wait()

	if _, ok := r.Get(s.ID); !ok {
		t.Error("live session lost during concurrent access")
	}
}

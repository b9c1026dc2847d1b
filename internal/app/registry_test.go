package app

import (
	"sync"
	"testing"

	"github.com/dkeye/Beam/internal/domain"
)

func TestRegistry_concurrentCreateUniqueness(t *testing.T) {
	const n = 200
	reg := NewRegistry()

	var wg sync.WaitGroup
	ids := make(chan domain.SessionID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- reg.Create("stream").ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[domain.SessionID]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct ids, want %d", len(seen), n)
	}
	if reg.Len() != n {
		t.Errorf("registry size = %d, want %d", reg.Len(), n)
	}
}

func TestRegistry_removeIdempotent(t *testing.T) {
	reg := NewRegistry()
	sess := reg.Create("stream")

	reg.Remove(sess.ID)
	if _, ok := reg.Get(sess.ID); ok {
		t.Fatal("session still present after remove")
	}
	// Removing again, or removing something never created, is a no-op.
	reg.Remove(sess.ID)
	reg.Remove("never-created")
	if reg.Len() != 0 {
		t.Errorf("registry size = %d, want 0", reg.Len())
	}
}

func TestRegistry_snapshot(t *testing.T) {
	reg := NewRegistry()
	a := reg.Create("a")
	b := reg.Create("b")

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	found := map[domain.SessionID]bool{}
	for _, s := range snap {
		found[s.ID] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Errorf("snapshot missing sessions: %v", found)
	}
}

func TestSessionEntry_takeForStopOnce(t *testing.T) {
	reg := NewRegistry()
	sess := reg.Create("stream")
	ent, ok := reg.entry(sess.ID)
	if !ok {
		t.Fatal("entry missing")
	}

	const n = 16
	var wg sync.WaitGroup
	firsts := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, _, first := ent.takeForStop()
			firsts <- first
		}()
	}
	wg.Wait()
	close(firsts)

	count := 0
	for first := range firsts {
		if first {
			count++
		}
	}
	if count != 1 {
		t.Errorf("%d callers claimed the stop, want exactly 1", count)
	}
}

func TestSessionEntry_bindAfterStopRefused(t *testing.T) {
	reg := NewRegistry()
	sess := reg.Create("stream")
	ent, _ := reg.entry(sess.ID)

	if _, _, _, _, first := ent.takeForStop(); !first {
		t.Fatal("first takeForStop should win")
	}
	if ent.bindMedia(nil, func() {}) {
		t.Error("bindMedia accepted after stop")
	}
	if ent.bindEgress(&domain.IngestHandle{}, nil) {
		t.Error("bindEgress accepted after stop")
	}
}

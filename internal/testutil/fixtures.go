package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/canvaspipe/internal/store"
)

// OpenStore opens a store in a per-test temp dir, stamped by clock (a fresh
// DeterministicClock when nil). The store is closed on cleanup.
func OpenStore(t testing.TB, clock *DeterministicClock) *store.Store {
	t.Helper()
	if clock == nil {
		clock = NewDeterministicClock()
	}
	path := filepath.Join(t.TempDir(), "canvaspipe.db")
	s, err := store.Open(path, store.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

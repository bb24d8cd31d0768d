package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/canvaspipe/internal/ir"
)

var testEpoch = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new temp-dir store with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time { return testEpoch }))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func segScope(segment string) ir.Scope {
	return ir.Scope{ProjectID: "p1", SegmentID: segment}
}

func newDraft(id string, ordinal int64, name string) NewDraft {
	return NewDraft{
		ID:      id,
		Ordinal: ordinal,
		Payload: ir.Obj(ir.O("name", ir.IRString(name))),
	}
}

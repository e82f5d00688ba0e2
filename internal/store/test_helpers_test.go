package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp dir with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.now = fixedClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

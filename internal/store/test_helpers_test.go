package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/sigsync/internal/ir"
)

// createTestStore opens a journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSignal writes a list-mode signal row.
func createTestSignal(t *testing.T, s *Store, id string) {
	t.Helper()
	rec := SignalRecord{
		ID:        id,
		Ownership: "pinned",
		Capacity:  100,
		CreatedAt: time.UnixMilli(1700000000000),
	}
	if err := s.WriteSignal(context.Background(), rec); err != nil {
		t.Fatalf("WriteSignal() failed: %v", err)
	}
}

// mustRecord builds an event record or fails the test.
func mustRecord(t *testing.T, signalID string, seq int64, e ir.Event) EventRecord {
	t.Helper()
	rec, err := NewEventRecord(signalID, seq, e)
	if err != nil {
		t.Fatalf("NewEventRecord() failed: %v", err)
	}
	return rec
}

func insertAfter(id string, value any) ir.Event {
	return ir.NewEvent(id, ir.Insert(ir.RootID, ir.DirectionAfter, ir.MustValue(value)))
}

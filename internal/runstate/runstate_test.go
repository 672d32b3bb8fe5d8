package runstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStore_WriteLoadRoundTrip(t *testing.T) {
	base := t.TempDir()
	s := NewStore(DefaultPath(base))

	started := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	rec := &Record{
		RunID:      "run-1",
		State:      StateRunning,
		PID:        os.Getpid(),
		BaseDir:    base,
		ServerAddr: "127.0.0.1:8711",
		StartedAt:  started,
		Cycles:     3,
	}

	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.RunID != rec.RunID {
		t.Fatalf("run_id mismatch: got=%q want=%q", got.RunID, rec.RunID)
	}
	if got.State != StateRunning {
		t.Fatalf("state mismatch: got=%q want=%q", got.State, StateRunning)
	}
	if got.Cycles != 3 {
		t.Fatalf("cycles mismatch: got=%d want=3", got.Cycles)
	}
}

func TestStore_WriteRequiresRunID(t *testing.T) {
	s := NewStore(DefaultPath(t.TempDir()))
	if err := s.Write(&Record{State: StateRunning}); err == nil {
		t.Fatal("expected error for empty run_id")
	}
}

func TestStore_LoadDowngradesZombie(t *testing.T) {
	base := t.TempDir()
	s := NewStore(DefaultPath(base))

	// A pid that cannot exist on Linux.
	rec := &Record{
		RunID:     "run-1",
		State:     StateRunning,
		PID:       1 << 30,
		BaseDir:   base,
		StartedAt: time.Now().UTC(),
	}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.State != StateUnknown {
		t.Fatalf("expected zombie downgrade to %q, got %q", StateUnknown, got.State)
	}

	// The downgrade is persisted.
	again, err := s.Load()
	if err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if again.State != StateUnknown {
		t.Fatalf("downgrade not persisted, got %q", again.State)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope", "run.json"))
	if _, err := s.Load(); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

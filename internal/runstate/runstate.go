// Package runstate persists the daemon's run record so operators and
// the status command can see what a tree's orchestrator is doing
// without talking to the process.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// State is the daemon lifecycle state persisted in run.json.
//
// NOTE: These values are part of the stable on-disk contract.
type State string

const (
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateUnknown  State = "unknown"
)

// Record is the persistent record written to run.json.
//
// The schema is designed for backward-compatible extension (additive
// fields).
type Record struct {
	RunID      string    `json:"run_id"`
	State      State     `json:"state"`
	PID        int       `json:"pid,omitempty"`
	BaseDir    string    `json:"base_dir"`
	ServerAddr string    `json:"server_addr,omitempty"`
	StartedAt  time.Time `json:"started_at"`

	LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	Cycles      int        `json:"cycles,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// DefaultPath returns the run record location for a job tree.
func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, ".qcherd", "run.json")
}

// Store reads and writes one run.json.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

func (s *Store) Path() string {
	return s.path
}

// Write persists the record atomically: full temp write, then rename.
// A crash mid-write leaves either the old record or the new one, never
// a torn file.
func (s *Store) Write(record *Record) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}
	if strings.TrimSpace(record.RunID) == "" {
		return fmt.Errorf("run_id is required")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create run state dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "run.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp run file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp run file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename run file: %w", err)
	}
	return nil
}

// Load reads the current record.
//
// Zombie detection: a record claiming running whose pid no longer
// exists is downgraded to unknown and rewritten, so a crashed daemon
// does not read as alive forever.
func (s *Store) Load() (*Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("run.json is empty")
	}

	var record Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse run.json: %w", err)
	}

	if record.State == StateRunning && record.PID > 0 {
		if !isProcessAlive(record.PID) {
			record.State = StateUnknown
			_ = s.Write(&record)
		}
	}

	return &record, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without sending a signal.
	if err := p.Signal(os.Signal(syscall.Signal(0))); err != nil {
		return false
	}
	return true
}

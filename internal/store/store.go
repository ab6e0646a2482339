// Package store persists the single JSON snapshot that survives a server
// restart. It carries no business logic: callers decide what to do with a
// loaded record, and a failed save degrades recovery fidelity, not live
// operation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mcdev12/racetrack/internal/race"
)

// Snapshot is the durable record: every session, the selected-session
// pointer, and every countdown keyed by session id.
type Snapshot struct {
	RaceSessions         []*race.Session       `json:"raceSessions"`
	CurrentSelectSession *int64                `json:"currentSelectSession"`
	RaceTimers           map[int64]*race.Timer `json:"raceTimers"`
}

// EmptySnapshot is the first-run state: no sessions, no selection, no timers.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		RaceSessions: []*race.Session{},
		RaceTimers:   map[int64]*race.Timer{},
	}
}

// Store loads and saves the whole snapshot.
type Store interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
}

// FileStore keeps the snapshot in one JSON file. Writes replace the whole
// file through a temp-file rename so a crash mid-write never leaves a
// half-written snapshot behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot. A missing file is not an error: it yields the
// empty default record.
func (f *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EmptySnapshot(), nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", f.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", f.path, err)
	}
	if snap.RaceSessions == nil {
		snap.RaceSessions = []*race.Session{}
	}
	if snap.RaceTimers == nil {
		snap.RaceTimers = map[int64]*race.Timer{}
	}
	return &snap, nil
}

// Save writes the snapshot as a whole-file replacement.
func (f *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".races-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot %s: %w", f.path, err)
	}
	return nil
}

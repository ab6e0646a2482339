package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/racetrack/internal/race"
)

func TestLoadMissingFileYieldsEmptyDefault(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "races.json"))

	snap, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.RaceSessions)
	assert.Nil(t, snap.CurrentSelectSession)
	assert.Empty(t, snap.RaceTimers)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "races.json"))

	selected := int64(1736000000000)
	snap := &Snapshot{
		RaceSessions: []*race.Session{
			{
				ID:          1736000000000,
				SessionName: "Heat 1",
				Drivers:     []race.Driver{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}},
				Status:      race.StatusInProgress,
			},
		},
		CurrentSelectSession: &selected,
		RaceTimers: map[int64]*race.Timer{
			1736000000000: {StartTime: 1736000000500, Duration: 600000, Status: race.TimerRunning},
		},
	}
	require.NoError(t, fs.Save(snap))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.RaceSessions, loaded.RaceSessions)
	require.NotNil(t, loaded.CurrentSelectSession)
	assert.Equal(t, selected, *loaded.CurrentSelectSession)
	assert.Equal(t, snap.RaceTimers, loaded.RaceTimers)
}

func TestSaveReplacesWholeFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "races.json"))

	require.NoError(t, fs.Save(&Snapshot{
		RaceSessions: []*race.Session{{ID: 1, SessionName: "Heat 1", Drivers: []race.Driver{}, Status: race.StatusUpcoming}},
		RaceTimers:   map[int64]*race.Timer{},
	}))
	require.NoError(t, fs.Save(EmptySnapshot()))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.RaceSessions)
}

func TestLoadCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "races.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestLoadNormalizesNullCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "races.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"raceSessions":null,"currentSelectSession":null,"raceTimers":null}`), 0o644))

	snap, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.NotNil(t, snap.RaceSessions)
	assert.NotNil(t, snap.RaceTimers)
}

package race

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFirstSessionIsUpcoming(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())

	first, err := r.Create("Heat 1")
	require.NoError(t, err)
	second, err := r.Create("Heat 2")
	require.NoError(t, err)
	third, err := r.Create("Heat 3")
	require.NoError(t, err)

	assert.Equal(t, StatusUpcoming, first.Status)
	assert.Equal(t, StatusConfirmed, second.Status)
	assert.Equal(t, StatusConfirmed, third.Status)

	upcoming := 0
	for _, s := range r.Sessions() {
		if s.Status == StatusUpcoming {
			upcoming++
		}
	}
	assert.Equal(t, 1, upcoming)
}

func TestCreateAssignsUniqueMonotonicIDs(t *testing.T) {
	// The fake clock never moves, so every id collides on wall time and the
	// monotonic guard must take over.
	r := NewRegistry(clockwork.NewFakeClock())

	var last int64
	for i := 0; i < 5; i++ {
		s, err := r.Create("session")
		require.NoError(t, err)
		assert.Greater(t, s.ID, last)
		last = s.ID
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())

	_, err := r.Create("")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = r.Create("   ")
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Equal(t, 0, r.Len())
}

func TestConfirmAssignsDenseDriverIDs(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	s, err := r.Create("Heat 1")
	require.NoError(t, err)

	confirmed, err := r.Confirm(s.ID, []string{" Alice ", "Bob"})
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.Len(t, confirmed.Drivers, 2)
	assert.Equal(t, Driver{ID: 1, Name: "Alice"}, confirmed.Drivers[0])
	assert.Equal(t, Driver{ID: 2, Name: "Bob"}, confirmed.Drivers[1])
}

func TestConfirmDuplicateNamesFailsAtomically(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	s, err := r.Create("Heat 1")
	require.NoError(t, err)
	_, err = r.Confirm(s.ID, []string{"Alice", "Bob"})
	require.NoError(t, err)

	_, err = r.Confirm(s.ID, []string{"A", "A"})
	assert.ErrorIs(t, err, ErrInvalidDrivers)

	// No partial mutation: the previous roster survives.
	require.Len(t, s.Drivers, 2)
	assert.Equal(t, "Alice", s.Drivers[0].Name)
	assert.Equal(t, "Bob", s.Drivers[1].Name)
}

func TestConfirmEmptyNameFails(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	s, err := r.Create("Heat 1")
	require.NoError(t, err)

	_, err = r.Confirm(s.ID, []string{"  ", "Bob"})
	assert.ErrorIs(t, err, ErrInvalidDrivers)
	assert.Empty(t, s.Drivers)
}

func TestConfirmUnknownSession(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	_, err := r.Confirm(42, []string{"Alice"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteRemovesSession(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	a, err := r.Create("Heat 1")
	require.NoError(t, err)
	b, err := r.Create("Heat 2")
	require.NoError(t, err)

	deleted, err := r.Delete(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)
	assert.Nil(t, r.Find(a.ID))
	assert.NotNil(t, r.Find(b.ID))

	_, err = r.Delete(a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNextQueuedSkipsRunningAndFinished(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	a, err := r.Create("Heat 1")
	require.NoError(t, err)
	b, err := r.Create("Heat 2")
	require.NoError(t, err)
	c, err := r.Create("Heat 3")
	require.NoError(t, err)

	a.Status = StatusInProgress
	b.Status = StatusFinished

	next := r.NextQueued()
	require.NotNil(t, next)
	assert.Equal(t, c.ID, next.ID)

	c.Status = StatusFinished
	assert.Nil(t, r.NextQueued())
}

func TestRestoreSeedsIDGuard(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	restored := []*Session{
		{ID: 9_000_000_000_000, SessionName: "Heat 1", Drivers: []Driver{}, Status: StatusConfirmed},
	}
	r.Restore(restored)

	// Ids persisted before a restart must never be reused.
	s, err := r.Create("Heat 2")
	require.NoError(t, err)
	assert.Greater(t, s.ID, restored[0].ID)
}

func TestRestoreNilStartsEmpty(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())
	r.Restore(nil)
	assert.NotNil(t, r.Sessions())
	assert.Equal(t, 0, r.Len())
}

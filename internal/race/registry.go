package race

import (
	"strings"

	"github.com/jonboulle/clockwork"
)

// Registry owns the ordered collection of race sessions. It is not
// goroutine-safe: the event hub is its only writer, so all calls happen on
// the hub loop (plus single-threaded boot recovery).
type Registry struct {
	clock    clockwork.Clock
	sessions []*Session
	lastID   int64
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:    clock,
		sessions: []*Session{},
	}
}

// Create appends a new empty session. The first session ever created starts
// as upcoming; every later one starts as confirmed.
func (r *Registry) Create(name string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	status := StatusConfirmed
	if len(r.sessions) == 0 {
		status = StatusUpcoming
	}

	s := &Session{
		ID:          r.nextID(),
		SessionName: name,
		Drivers:     []Driver{},
		Status:      status,
	}
	r.sessions = append(r.sessions, s)
	return s, nil
}

// nextID assigns time-based ids with a monotonic guard so two sessions
// created within the same millisecond never collide.
func (r *Registry) nextID() int64 {
	id := r.clock.Now().UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return id
}

// Confirm attaches drivers to a session and marks it confirmed. Every name is
// trimmed; an empty or exactly duplicated name fails the whole call with no
// partial mutation. Survivors get dense 1-based ids in submission order.
func (r *Registry) Confirm(id int64, names []string) (*Session, error) {
	s := r.Find(id)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	trimmed := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrInvalidDrivers
		}
		if _, dup := seen[name]; dup {
			return nil, ErrInvalidDrivers
		}
		seen[name] = struct{}{}
		trimmed = append(trimmed, name)
	}

	drivers := make([]Driver, len(trimmed))
	for i, name := range trimmed {
		drivers[i] = Driver{ID: i + 1, Name: name}
	}
	s.Drivers = drivers
	s.Status = StatusConfirmed
	return s, nil
}

// Delete removes a session from the registry and returns it.
func (r *Registry) Delete(id int64) (*Session, error) {
	for i, s := range r.sessions {
		if s.ID == id {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Find returns the session with the given id, or nil.
func (r *Registry) Find(id int64) *Session {
	for _, s := range r.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// NextQueued returns the first session in registry order that is still
// waiting to run, or nil. Used to auto-advance the selection after a session
// ends.
func (r *Registry) NextQueued() *Session {
	for _, s := range r.sessions {
		if s.Status == StatusUpcoming || s.Status == StatusConfirmed {
			return s
		}
	}
	return nil
}

// Sessions returns the registry contents in creation order.
func (r *Registry) Sessions() []*Session {
	return r.sessions
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

// Restore replaces the registry contents from a loaded snapshot and re-seeds
// the id guard so ids persisted before a restart are never reused.
func (r *Registry) Restore(sessions []*Session) {
	if sessions == nil {
		sessions = []*Session{}
	}
	r.sessions = sessions
	r.lastID = 0
	for _, s := range sessions {
		if s.ID > r.lastID {
			r.lastID = s.ID
		}
	}
}

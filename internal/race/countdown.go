package race

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// tickInterval is the fixed granularity of countdown broadcasts.
const tickInterval = 10 * time.Millisecond

// TimerStatus is the two-state machine of a countdown: running, then
// finished. Finished is terminal; a session's countdown never restarts.
type TimerStatus string

const (
	TimerRunning  TimerStatus = "running"
	TimerFinished TimerStatus = "finished"
)

// Timer is the persisted form of one countdown. Remaining time is always
// recomputed from StartTime and Duration, never from an in-process counter,
// which is what makes restart recovery correct.
type Timer struct {
	StartTime int64       `json:"startTime"` // unix milliseconds
	Duration  int64       `json:"duration"`  // milliseconds
	Status    TimerStatus `json:"status"`
}

// EngineEventKind discriminates countdown notifications.
type EngineEventKind int

const (
	EngineTick EngineEventKind = iota
	EngineExpired
)

// EngineEvent is emitted by the engine onto the hub's channel so countdown
// ticks and expiries are serialized with client intents.
type EngineEvent struct {
	Kind      EngineEventKind
	SessionID int64
	Remaining int64 // milliseconds, clamped to >= 0
}

// Engine owns one countdown per session that has ever been started. Start
// and Stop are called from the hub loop; each running countdown has exactly
// one tick goroutine, cancelled through its stop channel.
type Engine struct {
	clock  clockwork.Clock
	events chan<- EngineEvent

	mu     sync.Mutex
	timers map[int64]*Timer
	stops  map[int64]chan struct{}
}

func NewEngine(clock clockwork.Clock, events chan<- EngineEvent) *Engine {
	return &Engine{
		clock:  clock,
		events: events,
		timers: make(map[int64]*Timer),
		stops:  make(map[int64]chan struct{}),
	}
}

// Start arms a countdown for the session, replacing any live ticker first so
// two ticks can never race to emit conflicting countdowns. It refuses to
// restart a finished countdown.
func (e *Engine) Start(sessionID int64, duration time.Duration) error {
	e.mu.Lock()
	if t, ok := e.timers[sessionID]; ok && t.Status == TimerFinished {
		e.mu.Unlock()
		return ErrSessionFinished
	}
	e.cancelLocked(sessionID)

	t := &Timer{
		StartTime: e.clock.Now().UnixMilli(),
		Duration:  duration.Milliseconds(),
		Status:    TimerRunning,
	}
	e.timers[sessionID] = t
	stop := make(chan struct{})
	e.stops[sessionID] = stop
	e.mu.Unlock()

	log.Debug().
		Int64("session_id", sessionID).
		Dur("duration", duration).
		Msg("countdown started")

	go e.run(sessionID, t.StartTime, t.Duration, stop)
	return nil
}

// run is the per-session tick loop. It only reads the start/duration values
// captured at arm time and reports through the events channel; all state
// mutation happens back on the hub loop or under the engine lock.
func (e *Engine) run(sessionID, startMillis, durationMillis int64, stop chan struct{}) {
	ticker := e.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	start := time.UnixMilli(startMillis)
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			remaining := durationMillis - e.clock.Since(start).Milliseconds()
			if remaining > 0 {
				e.events <- EngineEvent{Kind: EngineTick, SessionID: sessionID, Remaining: remaining}
				continue
			}
			e.expire(sessionID, stop)
			return
		}
	}
}

// expire finalizes a countdown that ran out. The stop-channel identity check
// guards against a ticker that was replaced while its last tick was in
// flight.
func (e *Engine) expire(sessionID int64, stop chan struct{}) {
	e.mu.Lock()
	if e.stops[sessionID] != stop {
		e.mu.Unlock()
		return
	}
	delete(e.stops, sessionID)
	if t := e.timers[sessionID]; t != nil {
		t.Status = TimerFinished
	}
	e.mu.Unlock()

	e.events <- EngineEvent{Kind: EngineExpired, SessionID: sessionID}
}

// Stop cancels the session's ticker without waiting for expiry and marks the
// countdown finished. Safe to call for sessions that never started.
func (e *Engine) Stop(sessionID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(sessionID)
	if t := e.timers[sessionID]; t != nil {
		t.Status = TimerFinished
	}
}

func (e *Engine) cancelLocked(sessionID int64) {
	if stop, ok := e.stops[sessionID]; ok {
		close(stop)
		delete(e.stops, sessionID)
	}
}

// Remaining reports the milliseconds left on a session's countdown, clamped
// to zero. Finished or unknown countdowns report zero.
func (e *Engine) Remaining(sessionID int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.timers[sessionID]
	if !ok || t.Status != TimerRunning {
		return 0
	}
	remaining := t.Duration - (e.clock.Now().UnixMilli() - t.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Running reports whether the session currently has a live ticker.
func (e *Engine) Running(sessionID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.stops[sessionID]
	return ok
}

// Timer returns a copy of the session's persisted countdown state.
func (e *Engine) Timer(sessionID int64) (Timer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[sessionID]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// Snapshot copies all countdown state for persistence.
func (e *Engine) Snapshot() map[int64]*Timer {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int64]*Timer, len(e.timers))
	for id, t := range e.timers {
		copied := *t
		out[id] = &copied
	}
	return out
}

// Restore replaces the engine's bookkeeping from a loaded snapshot. It does
// not arm any tickers; recovery decides which countdowns to re-arm.
func (e *Engine) Restore(timers map[int64]*Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timers = make(map[int64]*Timer, len(timers))
	for id, t := range timers {
		copied := *t
		e.timers[id] = &copied
	}
}

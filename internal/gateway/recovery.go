package gateway

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/internal/race"
	"github.com/mcdev12/racetrack/internal/store"
)

// Recover rebuilds hub state from the durable snapshot and re-arms or
// finalizes any countdown that was running when the process last stopped.
// It runs exactly once, before Run and before the listener opens, so it may
// touch hub state directly. The reconciled state is persisted before
// returning: a repeated crash during recovery converges instead of
// diverging.
func (h *Hub) Recover() {
	snap, err := h.store.Load()
	if err != nil {
		// An unreadable snapshot must not refuse startup; fall back to the
		// first-run state.
		log.Error().Err(err).Msg("failed to load race snapshot, starting empty")
		snap = store.EmptySnapshot()
	}

	h.registry.Restore(snap.RaceSessions)
	h.selected = snap.CurrentSelectSession
	h.engine.Restore(snap.RaceTimers)

	for _, s := range h.registry.Sessions() {
		if s.Status != race.StatusInProgress {
			continue
		}
		t, ok := h.engine.Timer(s.ID)
		if !ok || t.Status != race.TimerRunning {
			continue
		}

		elapsed := h.clock.Now().UnixMilli() - t.StartTime
		remaining := t.Duration - elapsed
		if remaining > 0 {
			// Resume as a fresh countdown over the remaining duration.
			if err := h.engine.Start(s.ID, time.Duration(remaining)*time.Millisecond); err != nil {
				log.Error().Err(err).Int64("session_id", s.ID).Msg("failed to re-arm countdown")
				continue
			}
			log.Info().
				Int64("session_id", s.ID).
				Int64("remaining_ms", remaining).
				Msg("resumed in-flight countdown")
		} else {
			// The countdown ran out while the server was down; finalize
			// without waiting for a tick.
			h.engine.Stop(s.ID)
			s.Status = race.StatusFinished
			h.broadcast(MsgRaceModeChanged, "Finish")
			h.broadcast(MsgCountdownUpdate, 0)
			log.Info().Int64("session_id", s.ID).Msg("finalized countdown that expired while down")
		}
	}

	h.persist()
	log.Info().
		Int("sessions", h.registry.Len()).
		Msg("state recovered from snapshot")
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/racetrack/internal/config"
	"github.com/mcdev12/racetrack/internal/race"
	"github.com/mcdev12/racetrack/internal/store"
)

// client is anything attached to the hub that can receive wire frames.
// The websocket Conn implements it; tests attach channel-backed fakes.
type client interface {
	id() string
	enqueue(payload []byte)
}

type clientIntent struct {
	from client
	env  Envelope
}

// errInvalidPayload answers intents whose data cannot be decoded at all.
var errInvalidPayload = errors.New("Invalid request payload")

// Hub is the authoritative mediator between client intents and the session
// registry / countdown engine. A single goroutine drains all channels, so
// every handler runs to completion before the next: validate, mutate,
// persist, broadcast is atomic without locks. The hub is the sole writer of
// the registry, the engine bookkeeping, and the selected-session pointer.
type Hub struct {
	cfg      *config.Config
	registry *race.Registry
	engine   *race.Engine
	store    store.Store
	gate     *AccessGate
	clock    clockwork.Clock

	// selected points at the session whose data the displays should show;
	// nil means no selection.
	selected *int64

	clients      map[string]client
	intents      chan clientIntent
	engineEvents chan race.EngineEvent
	attachCh     chan client
	detachCh     chan string
}

func NewHub(cfg *config.Config, st store.Store, clock clockwork.Clock) *Hub {
	engineEvents := make(chan race.EngineEvent, 1024)
	return &Hub{
		cfg:          cfg,
		registry:     race.NewRegistry(clock),
		engine:       race.NewEngine(clock, engineEvents),
		store:        st,
		gate:         NewAccessGate(cfg),
		clock:        clock,
		clients:      make(map[string]client),
		intents:      make(chan clientIntent, 256),
		engineEvents: engineEvents,
		attachCh:     make(chan client),
		detachCh:     make(chan string),
	}
}

// Attach registers a client with the hub loop.
func (h *Hub) Attach(c client) {
	h.attachCh <- c
}

// Detach removes a client. Safe to call more than once per client.
func (h *Hub) Detach(id string) {
	h.detachCh <- id
}

// Submit hands a decoded intent to the hub loop.
func (h *Hub) Submit(from client, env Envelope) {
	h.intents <- clientIntent{from: from, env: env}
}

// Run drains intents and countdown events until the context is cancelled.
// No intent error is allowed to escape the loop.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("event hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event hub shutting down")
			return
		case c := <-h.attachCh:
			h.clients[c.id()] = c
			log.Debug().Str("connection_id", c.id()).Int("total_clients", len(h.clients)).Msg("client attached")
		case id := <-h.detachCh:
			if _, ok := h.clients[id]; ok {
				delete(h.clients, id)
				log.Debug().Str("connection_id", id).Int("total_clients", len(h.clients)).Msg("client detached")
			}
		case in := <-h.intents:
			h.handleIntent(in)
		case ev := <-h.engineEvents:
			h.handleEngineEvent(ev)
		}
	}
}

func (h *Hub) handleIntent(in clientIntent) {
	switch in.env.Type {
	case MsgFetchSessions:
		h.sendTo(in.from, MsgSessionsResponse, h.registry.Sessions())
		h.ack(in, nil)
	case MsgAddSession:
		h.handleAddSession(in)
	case MsgConfirmSession:
		h.handleConfirmSession(in)
	case MsgDeleteSession:
		h.handleDeleteSession(in)
	case MsgSelectSession:
		h.handleSelectSession(in)
	case MsgRequestSessionData:
		h.handleRequestSessionData(in)
	case MsgStartRace:
		h.handleStartRace(in)
	case MsgChangeMode:
		h.handleChangeMode(in)
	case MsgFinishRace:
		h.handleFinishRace(in)
	case MsgEndRaceSession:
		h.handleEndRaceSession(in)
	case MsgValidateKey:
		h.handleValidateKey(in)
	case MsgCurrentLapTimes:
		h.handleCurrentLapTimes(in)
	case MsgLapLineTrackerOpened, MsgLeaderboardOpened:
		// A freshly opened display needs the current selection rebroadcast.
		h.broadcast(MsgSelectSession, h.selected)
		h.ack(in, nil)
	default:
		log.Warn().Str("type", string(in.env.Type)).Str("connection_id", in.from.id()).Msg("unknown intent, ignoring")
	}
}

func (h *Hub) handleAddSession(in clientIntent) {
	var req AddSessionRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	s, err := h.registry.Create(req.SessionName)
	if err != nil {
		h.ack(in, err)
		return
	}

	// The very first session ever created becomes the selection.
	if h.registry.Len() == 1 {
		id := s.ID
		h.selected = &id
	}
	h.persist()

	if h.registry.Len() == 1 {
		h.broadcast(MsgSelectSession, h.selected)
	}
	h.broadcast(MsgSessionsResponse, h.registry.Sessions())
	h.ack(in, nil)
}

func (h *Hub) handleConfirmSession(in clientIntent) {
	var req ConfirmSessionRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	if _, err := h.registry.Confirm(req.SessionID, req.Drivers); err != nil {
		h.ack(in, err)
		return
	}
	h.persist()
	h.broadcast(MsgSessionsResponse, h.registry.Sessions())
	h.ack(in, nil)
}

func (h *Hub) handleDeleteSession(in clientIntent) {
	var req SessionIDRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	deleted, err := h.registry.Delete(req.SessionID)
	if err != nil {
		h.ack(in, err)
		return
	}
	h.engine.Stop(deleted.ID)
	// Deletion never auto-advances the selection; displays are told the
	// session is gone and the selection is simply cleared.
	if h.selected != nil && *h.selected == deleted.ID {
		h.selected = nil
	}
	h.persist()

	h.broadcast(MsgSessionDeleted, SessionDeletedNotice{SessionID: deleted.ID})
	h.broadcast(MsgSessionsResponse, h.registry.Sessions())
	h.ack(in, nil)
}

func (h *Hub) handleSelectSession(in clientIntent) {
	var req SelectSessionRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	h.selected = req.SessionID
	h.persist()
	h.broadcast(MsgSelectSession, h.selected)

	if req.SessionID != nil {
		if s := h.registry.Find(*req.SessionID); s != nil {
			h.sendTo(in.from, MsgSessionData, SessionData{Session: s, InitialCars: initialCars(s)})
		}
	}
	h.ack(in, nil)
}

func (h *Hub) handleRequestSessionData(in clientIntent) {
	var req SessionIDRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	if s := h.registry.Find(req.SessionID); s != nil {
		h.sendTo(in.from, MsgSessionData, SessionData{Session: s, InitialCars: initialCars(s)})
	} else {
		h.sendTo(in.from, MsgSessionData, nil)
	}
	h.ack(in, nil)
}

func (h *Hub) handleStartRace(in clientIntent) {
	var req StartRaceRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	s := h.registry.Find(req.SessionID)
	if s == nil {
		h.ack(in, race.ErrSessionNotFound)
		return
	}
	if s.Status == race.StatusFinished {
		h.ack(in, race.ErrSessionFinished)
		return
	}

	duration := h.cfg.DefaultRaceDuration()
	if req.Duration > 0 {
		duration = time.Duration(req.Duration) * time.Second
	}
	if err := h.engine.Start(s.ID, duration); err != nil {
		h.ack(in, err)
		return
	}
	s.Status = race.StatusInProgress
	h.persist()

	h.broadcast(MsgCountdownUpdate, duration.Milliseconds())
	h.broadcast(MsgRaceStarted, s.ID)
	h.broadcast(MsgRaceModeChanged, "Safe")
	h.broadcast(MsgSessionsResponse, h.registry.Sessions())
	h.ack(in, nil)

	log.Info().Int64("session_id", s.ID).Dur("duration", duration).Msg("race started")
}

// handleChangeMode relays the mode to every client. Mode is never stored:
// displays derive it purely from the latest broadcast.
func (h *Hub) handleChangeMode(in clientIntent) {
	var req ChangeModeRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}
	h.broadcast(MsgRaceModeChanged, req.Mode)
	h.ack(in, nil)
}

func (h *Hub) handleFinishRace(in clientIntent) {
	var req SessionIDRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	s := h.registry.Find(req.SessionID)
	if s == nil {
		h.ack(in, race.ErrSessionNotFound)
		return
	}

	h.engine.Stop(s.ID)
	s.Status = race.StatusFinished
	h.persist()

	h.broadcast(MsgRaceModeChanged, "Finish")
	h.broadcast(MsgCountdownUpdate, 0)
	h.broadcast(MsgSessionsResponse, h.registry.Sessions())
	h.ack(in, nil)

	log.Info().Int64("session_id", s.ID).Msg("race finished manually")
}

func (h *Hub) handleEndRaceSession(in clientIntent) {
	var req SessionIDRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	deleted, err := h.registry.Delete(req.SessionID)
	if err != nil {
		h.ack(in, err)
		return
	}
	h.engine.Stop(deleted.ID)

	next := h.registry.NextQueued()
	if next != nil {
		id := next.ID
		h.selected = &id
	} else if h.selected != nil && *h.selected == deleted.ID {
		h.selected = nil
	}
	h.persist()

	h.broadcast(MsgSessionDeleted, SessionDeletedNotice{SessionID: deleted.ID})
	h.broadcast(MsgEndRaceSession, nil)
	if next != nil {
		h.broadcast(MsgSelectSession, h.selected)
	}
	h.ack(in, nil)

	log.Info().Int64("session_id", deleted.ID).Msg("race session ended")
}

func (h *Hub) handleValidateKey(in clientIntent) {
	var req ValidateKeyRequest
	if err := json.Unmarshal(in.env.Data, &req); err != nil {
		h.ack(in, errInvalidPayload)
		return
	}

	if h.gate.Validate(req.Role, req.Key) {
		h.sendTo(in.from, MsgKeyValidationResponse, KeyValidationResponse{Success: true, Message: "Access granted"})
		h.ack(in, nil)
		return
	}

	// Failures answer after a fixed delay. The wait runs off-loop so it
	// cannot stall broadcast ordering; the frame is built here so the
	// goroutine touches no hub state.
	env, err := newEnvelope(MsgKeyValidationResponse, KeyValidationResponse{Success: false, Message: "Invalid access key"})
	if err != nil {
		log.Error().Err(err).Msg("failed to build key validation response")
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal key validation response")
		return
	}
	target := in.from
	go func() {
		<-h.clock.After(invalidKeyDelay)
		target.enqueue(payload)
	}()
	h.ack(in, nil)
}

// handleCurrentLapTimes relays a lap report to every other client. Lap
// aggregation is fully peer-broadcast; the server keeps no lap state. The
// relay is dropped, not errored, unless the selected session is racing.
func (h *Hub) handleCurrentLapTimes(in clientIntent) {
	if h.selected == nil {
		return
	}
	s := h.registry.Find(*h.selected)
	if s == nil || s.Status != race.StatusInProgress {
		return
	}
	h.broadcastExceptRaw(in.from.id(), MsgCurrentLapTimes, in.env.Data)
}

func (h *Hub) handleEngineEvent(ev race.EngineEvent) {
	switch ev.Kind {
	case race.EngineTick:
		// A tick can still be in flight after its timer was replaced or
		// stopped; only a live timer may emit.
		if !h.engine.Running(ev.SessionID) {
			return
		}
		h.broadcast(MsgCountdownUpdate, ev.Remaining)
	case race.EngineExpired:
		if s := h.registry.Find(ev.SessionID); s != nil {
			s.Status = race.StatusFinished
		}
		h.persist()
		h.broadcast(MsgCountdownUpdate, 0)
		h.broadcast(MsgRaceModeChanged, "Finish")
		h.broadcast(MsgSessionsResponse, h.registry.Sessions())
		log.Info().Int64("session_id", ev.SessionID).Msg("countdown expired")
	}
}

// persist snapshots the full state after a mutation. A failed save is
// logged and otherwise ignored: in-memory state is the source of truth and
// durable storage is best-effort for restart recovery.
func (h *Hub) persist() {
	snap := &store.Snapshot{
		RaceSessions:         h.registry.Sessions(),
		CurrentSelectSession: h.selected,
		RaceTimers:           h.engine.Snapshot(),
	}
	if err := h.store.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to save race snapshot")
	}
}

// ack answers a mutating intent on its acknowledgment channel. Intents that
// carried no request id asked for no ack.
func (h *Hub) ack(in clientIntent, result error) {
	if in.env.RequestID == "" {
		return
	}
	a := Ack{Success: result == nil}
	if result != nil {
		a.Error = result.Error()
	}
	data, err := json.Marshal(a)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal ack")
		return
	}
	payload, err := json.Marshal(Envelope{Type: MsgAck, RequestID: in.env.RequestID, Data: data})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal ack envelope")
		return
	}
	in.from.enqueue(payload)
}

func (h *Hub) sendTo(c client, t MessageType, v any) {
	env, err := newEnvelope(t, v)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build frame")
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to marshal frame")
		return
	}
	c.enqueue(payload)
}

// broadcast sends one frame to every attached client, marshaled once, in
// the order the mutating intents were processed.
func (h *Hub) broadcast(t MessageType, v any) {
	env, err := newEnvelope(t, v)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("failed to build broadcast")
		return
	}
	h.broadcastEnvelope("", env)
}

// broadcastExceptRaw relays an already-encoded payload to everyone but the
// sender.
func (h *Hub) broadcastExceptRaw(senderID string, t MessageType, data json.RawMessage) {
	h.broadcastEnvelope(senderID, Envelope{Type: t, Data: data})
}

func (h *Hub) broadcastEnvelope(skipID string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("type", string(env.Type)).Msg("failed to marshal broadcast")
		return
	}
	for id, c := range h.clients {
		if skipID != "" && id == skipID {
			continue
		}
		c.enqueue(payload)
	}
}

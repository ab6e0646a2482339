package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/mcdev12/racetrack/internal/race"
)

// MessageType is the closed enumeration of the event protocol. The values
// are the channel names the display and control clients already speak.
type MessageType string

// Client -> server intents.
const (
	MsgFetchSessions        MessageType = "fetch-sessions"
	MsgAddSession           MessageType = "add-session"
	MsgConfirmSession       MessageType = "confirm-session"
	MsgDeleteSession        MessageType = "delete-session"
	MsgRequestSessionData   MessageType = "request-session-data"
	MsgStartRace            MessageType = "start-race"
	MsgChangeMode           MessageType = "change-mode"
	MsgFinishRace           MessageType = "finish-race"
	MsgValidateKey          MessageType = "validate-key"
	MsgLapLineTrackerOpened MessageType = "lap-line-tracker-opened"
	MsgLeaderboardOpened    MessageType = "leaderboard-opened"
)

// Server -> client broadcasts.
const (
	MsgSessionsResponse      MessageType = "fetch-sessions-response"
	MsgSessionDeleted        MessageType = "session-deleted"
	MsgSessionData           MessageType = "session-data"
	MsgRaceStarted           MessageType = "race-started"
	MsgRaceModeChanged       MessageType = "race-mode-changed"
	MsgCountdownUpdate       MessageType = "countdown-update"
	MsgKeyValidationResponse MessageType = "key-validation-response"
	MsgAck                   MessageType = "ack"
)

// Both directions: clients send these as intents, and the hub also
// broadcasts them to keep every display on the same session.
const (
	MsgSelectSession   MessageType = "select-session"
	MsgEndRaceSession  MessageType = "end-race-session"
	MsgCurrentLapTimes MessageType = "current-lap-times"
)

// Envelope is the single wire frame. RequestID is optional: intents that
// carry one get an ack frame echoing it back.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Ack is the structured result of a mutating intent. Expected failures
// ("session not found", invalid drivers) travel here, never as broadcasts.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type AddSessionRequest struct {
	SessionName string `json:"sessionName"`
}

type ConfirmSessionRequest struct {
	SessionID int64    `json:"sessionId"`
	Drivers   []string `json:"drivers"`
}

type SessionIDRequest struct {
	SessionID int64 `json:"sessionId"`
}

type SelectSessionRequest struct {
	SessionID *int64 `json:"sessionId"`
}

type StartRaceRequest struct {
	SessionID int64 `json:"sessionId"`
	// Duration is in seconds; zero means "use the configured default".
	Duration int64 `json:"duration"`
}

type ChangeModeRequest struct {
	Mode string `json:"mode"`
}

type ValidateKeyRequest struct {
	Key  string `json:"key"`
	Role string `json:"role"`
}

type KeyValidationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SessionDeletedNotice struct {
	SessionID int64 `json:"sessionId"`
}

// CarState is the per-driver display seed sent with session data. Car
// numbers are recomputed on every selection as driver index + 1 and never
// persisted.
type CarState struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	CarNumber       string  `json:"carNumber"`
	LapTimes        []int64 `json:"lapTimes"`
	CurrentLapStart *int64  `json:"currentLapStart"`
	CurrentTime     int64   `json:"currentTime"`
}

type SessionData struct {
	Session     *race.Session `json:"session"`
	InitialCars []CarState    `json:"initialCars"`
}

// newEnvelope builds a wire frame with a marshaled payload.
func newEnvelope(t MessageType, v any) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// initialCars seeds one CarState per confirmed driver.
func initialCars(s *race.Session) []CarState {
	cars := make([]CarState, len(s.Drivers))
	for i, d := range s.Drivers {
		cars[i] = CarState{
			ID:        d.ID,
			Name:      d.Name,
			CarNumber: fmt.Sprintf("%d", i+1),
			LapTimes:  []int64{},
		}
	}
	return cars
}

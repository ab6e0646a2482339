package race

import "errors"

// Sentinel errors for expected conditions. Their text is what clients see in
// acknowledgment payloads, so it stays in display form.
var (
	ErrSessionNotFound = errors.New("Session not found")
	ErrEmptyName       = errors.New("Session name needed")
	ErrInvalidDrivers  = errors.New("Driver names must be unique and non-empty")
	ErrSessionFinished = errors.New("Session already finished")
)

package gateway

import (
	"time"

	"github.com/mcdev12/racetrack/internal/config"
)

// Role names are fixed; each is bound at startup to one shared-secret key.
const (
	RoleReceptionist = "receptionist"
	RoleObserver     = "observer"
	RoleSafety       = "safety"
)

// invalidKeyDelay throttles guessing. It is a fixed artificial delay, not
// real rate limiting.
const invalidKeyDelay = 500 * time.Millisecond

// AccessGate validates a role's shared-secret key. This is a capability
// check deciding which intents a client may use, not a security boundary:
// there is no token issuance and no per-connection credential state.
type AccessGate struct {
	keys map[string]string
}

func NewAccessGate(cfg *config.Config) *AccessGate {
	return &AccessGate{
		keys: map[string]string{
			RoleReceptionist: cfg.ReceptionistKey,
			RoleObserver:     cfg.ObserverKey,
			RoleSafety:       cfg.SafetyKey,
		},
	}
}

// Validate reports whether the submitted key matches the role's configured
// key. Callers never learn whether the role or the key was wrong.
func (g *AccessGate) Validate(role, key string) bool {
	expected, ok := g.keys[role]
	return ok && key != "" && key == expected
}

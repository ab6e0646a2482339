package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/racetrack/internal/config"
)

func TestAccessGateValidate(t *testing.T) {
	gate := NewAccessGate(&config.Config{
		ReceptionistKey: "front-desk",
		ObserverKey:     "lap-line",
		SafetyKey:       "race-control",
	})

	tests := []struct {
		name string
		role string
		key  string
		want bool
	}{
		{name: "receptionist valid", role: RoleReceptionist, key: "front-desk", want: true},
		{name: "observer valid", role: RoleObserver, key: "lap-line", want: true},
		{name: "safety valid", role: RoleSafety, key: "race-control", want: true},
		{name: "wrong key", role: RoleSafety, key: "lap-line", want: false},
		{name: "unknown role", role: "announcer", key: "front-desk", want: false},
		{name: "empty key", role: RoleReceptionist, key: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Validate(tt.role, tt.key))
		})
	}
}

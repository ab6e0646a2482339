package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredKeys(t *testing.T) {
	t.Setenv("RECEPTIONIST_KEY", "front-desk")
	t.Setenv("OBSERVER_KEY", "lap-line")
	t.Setenv("SAFETY_KEY", "race-control")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 5001, cfg.Port)
	assert.Equal(t, "races.json", cfg.SnapshotPath)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 10*time.Minute, cfg.DefaultRaceDuration())
}

func TestLoadRefusesMissingRoleKey(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("OBSERVER_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OBSERVER_KEY")
}

func TestDevelopmentUsesShortDefaultDuration(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.Minute, cfg.DefaultRaceDuration())
}

func TestDurationsConfigurable(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("RACE_DURATION", "15m")
	t.Setenv("DEV_RACE_DURATION", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.RaceDuration)
	assert.Equal(t, 30*time.Second, cfg.DevRaceDuration)
}

func TestInvalidPortRejected(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("PORT", "-1")

	_, err := Load()
	assert.Error(t, err)
}

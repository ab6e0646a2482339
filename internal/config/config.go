package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full environment surface of the server. The three role keys
// have no defaults: startup refuses to run without them.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"production"`
	Port            int           `env:"PORT" envDefault:"5001"`
	ReceptionistKey string        `env:"RECEPTIONIST_KEY"`
	ObserverKey     string        `env:"OBSERVER_KEY"`
	SafetyKey       string        `env:"SAFETY_KEY"`
	RaceDuration    time.Duration `env:"RACE_DURATION" envDefault:"10m"`
	DevRaceDuration time.Duration `env:"DEV_RACE_DURATION" envDefault:"1m"`
	SnapshotPath    string        `env:"SNAPSHOT_PATH" envDefault:"races.json"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for _, req := range []struct {
		name  string
		value string
	}{
		{name: "RECEPTIONIST_KEY", value: c.ReceptionistKey},
		{name: "OBSERVER_KEY", value: c.ObserverKey},
		{name: "SAFETY_KEY", value: c.SafetyKey},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %d", c.Port)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DefaultRaceDuration is used when a start-race intent does not carry a
// duration: short in development, full-length otherwise.
func (c *Config) DefaultRaceDuration() time.Duration {
	if c.IsDevelopment() {
		return c.DevRaceDuration
	}
	return c.RaceDuration
}

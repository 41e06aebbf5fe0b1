// Package config reads process configuration from the environment.
package config

import (
	"time"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// Config holds every knob the server reads at startup. Empty addresses
// disable the corresponding optional backend.
type Config struct {
	HTTPAddr string `config:"HTTP_ADDR"`

	RedisAddr     string `config:"REDIS_ADDR"`
	RedisPassword string `config:"REDIS_PASSWORD"`
	RedisDisabled bool   `config:"REDIS_DISABLED"`

	PostgresDSN string `config:"POSTGRES_DSN"`

	StatsdAddr string `config:"STATSD_ADDR"`

	TickIntervalMS int  `config:"TICK_INTERVAL_MS"`
	PrettyLog      bool `config:"PRETTY_LOG"`
}

// Load reads the environment over built-in defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       ":8080",
		RedisAddr:      "localhost:6379",
		TickIntervalMS: 50,
	}
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "load config")
	}
	if cfg.TickIntervalMS <= 0 {
		return Config{}, eris.New("TICK_INTERVAL_MS must be positive")
	}
	return cfg, nil
}

// TickInterval converts the configured frame budget to a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

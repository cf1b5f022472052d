// Package config loads dcrcheck runtime defaults from the environment.
//
// Command-line flags always win over these values; the environment only
// supplies defaults for flags the user did not set.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/sebastiandunzer/dcr-log-filter/internal/engine"
)

// Runtime holds environment-driven defaults for a check run.
type Runtime struct {
	Policy   engine.Policy `env:"DCRCHECK_POLICY"    envDefault:"fail-fast"`
	Mode     engine.Mode   `env:"DCRCHECK_MODE"      envDefault:"parallel"`
	Workers  int           `env:"DCRCHECK_WORKERS"   envDefault:"0"`
	Strict   bool          `env:"DCRCHECK_STRICT"    envDefault:"false"`
	DB       string        `env:"DCRCHECK_DB"`
	LogLevel slog.Level    `env:"DCRCHECK_LOG_LEVEL" envDefault:"INFO"`
}

// Load reads Runtime from the process environment.
func Load() (Runtime, error) {
	var rt Runtime
	if err := ParseEnv(&rt); err != nil {
		return Runtime{}, err
	}
	if err := rt.Validate(); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values the env tags cannot express.
func (rt Runtime) Validate() error {
	if rt.Workers < 0 {
		return fmt.Errorf("DCRCHECK_WORKERS must be >= 0, got %d", rt.Workers)
	}
	return nil
}

// DriverOptions converts the runtime into engine driver options.
func (rt Runtime) DriverOptions() []engine.DriverOption {
	opts := []engine.DriverOption{
		engine.WithPolicy(rt.Policy),
		engine.WithMode(rt.Mode),
		engine.WithWorkers(rt.Workers),
	}
	if rt.Strict {
		opts = append(opts, engine.WithStrictActivities())
	}
	return opts
}

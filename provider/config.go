// Package provider manages external tool provider processes: spawning,
// handshake, the line-delimited JSON-RPC request/response transport, and the
// connect/disconnect lifecycle. One Supervisor owns every provider entry in a
// host process; nothing here is a package-level singleton.
package provider

import (
	"strings"

	"github.com/crosswire-ai/crosswire/guard"
)

// Config is the launch configuration for one provider.
type Config struct {
	// ID uniquely identifies the provider within the supervisor.
	ID string `json:"id" yaml:"id"`

	// Command is the executable to spawn. Validated by guard before
	// acceptance and again before every spawn.
	Command string `json:"command" yaml:"command"`

	// Args are passed to the command verbatim, never through a shell.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env entries are merged over the host environment.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// AutoConnect marks the provider for connection at startup.
	AutoConnect bool `json:"auto_connect,omitempty" yaml:"auto_connect,omitempty"`

	// HealthSchedule is an optional UTC cron expression controlling
	// health-probe cadence for this provider.
	HealthSchedule string `json:"health_schedule,omitempty" yaml:"health_schedule,omitempty"`
}

// Validate checks the config's identity and its launch tuple.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return &guard.ValidationError{Field: "id", Reason: "provider id is empty"}
	}
	return guard.ValidateConfig(c.Command, c.Args, c.Env)
}

// clone returns a deep copy so callers cannot mutate a stored config.
func (c Config) clone() Config {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = make(map[string]string, len(c.Env))
		for key, value := range c.Env {
			out.Env[key] = value
		}
	}
	return out
}

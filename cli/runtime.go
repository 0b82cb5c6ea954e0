package cli

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crosswire-ai/crosswire/bus"
	"github.com/crosswire-ai/crosswire/loader"
	"github.com/crosswire-ai/crosswire/provider"
	"github.com/crosswire-ai/crosswire/registry"
)

// toolRuntime bundles the live pieces a command needs to dispatch tools.
type toolRuntime struct {
	bus        *bus.MemBus
	supervisor *provider.Supervisor
	registry   *registry.Registry
}

// resolveConfigs loads provider configs from --config when set, falling back
// to the provider store.
func resolveConfigs(cmd *cobra.Command) ([]provider.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(configPath) != "" {
		configs, err := loader.Load(configPath)
		if err != nil {
			return nil, exitError(exitValidation, "%v", err)
		}
		return configs, nil
	}

	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	configs, err := s.List(cmd.Context())
	if err != nil {
		return nil, exitError(exitRuntime, "listing providers: %v", err)
	}
	return configs, nil
}

// startRuntime builds the supervisor/bridge/registry stack, connects every
// auto-connect provider, and refreshes the merged catalog. Connection
// failures are reported but do not abort startup; other providers still come
// up.
func startRuntime(ctx context.Context, logger *slog.Logger, configs []provider.Config, callTimeout time.Duration) (*toolRuntime, error) {
	eb := bus.NewMemBus(bus.MemBusConfig{})
	supervisor := provider.NewSupervisor(provider.SupervisorConfig{
		Logger: logger,
		Bus:    eb,
	})

	for _, cfg := range configs {
		if err := supervisor.Add(cfg); err != nil {
			_ = supervisor.Shutdown(ctx)
			_ = eb.Close()
			return nil, exitError(exitValidation, "%v", err)
		}
	}

	for _, cfg := range configs {
		if !cfg.AutoConnect {
			continue
		}
		if err := supervisor.Connect(ctx, cfg.ID); err != nil {
			logger.Warn("provider failed to connect",
				"provider_id", cfg.ID, "error", err)
		}
	}

	reg := registry.New(registry.Config{
		Source:      provider.NewBridge(supervisor),
		Logger:      logger,
		CallTimeout: callTimeout,
	})
	if err := registerBuiltins(reg); err != nil {
		_ = supervisor.Shutdown(ctx)
		_ = eb.Close()
		return nil, exitError(exitRuntime, "registering built-in tools: %v", err)
	}
	reg.Refresh()

	return &toolRuntime{bus: eb, supervisor: supervisor, registry: reg}, nil
}

// stop shuts down every provider and closes the event bus.
func (rt *toolRuntime) stop(ctx context.Context) {
	if rt == nil {
		return
	}
	_ = rt.supervisor.Shutdown(ctx)
	_ = rt.bus.Close()
}

// quietLogger returns a logger at the level implied by the root --verbose
// and --quiet flags.
func quietLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

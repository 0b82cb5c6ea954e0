package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/crosswire-ai/crosswire/core"
	"github.com/crosswire-ai/crosswire/health"
	crosswireotel "github.com/crosswire-ai/crosswire/otel"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the provider substrate until interrupted",
		Long: "Connects every auto-connect provider, keeps the tool catalog " +
			"fresh, health-checks connections, and serves until SIGINT/SIGTERM.",
		RunE: runRun,
	}

	cmd.Flags().String("config", "", "Provider config file (overrides the store)")
	cmd.Flags().String("store-path", "", "Provider store path (.json for file store)")
	cmd.Flags().Duration("call-timeout", 0, "Per-call dispatch timeout (default 30s)")
	cmd.Flags().Duration("health-poll", 30*time.Second, "Health check poll interval")
	cmd.Flags().Int("health-threshold", 3, "Consecutive failures before a provider is unhealthy")
	cmd.Flags().Bool("disconnect-unhealthy", false, "Disconnect providers that cross the failure threshold")
	cmd.Flags().Bool("otlp", false, "Export traces over OTLP HTTP")
	cmd.Flags().String("otlp-endpoint", "", "OTLP collector host:port")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	logger := quietLogger(cmd)

	if enabled, _ := cmd.Flags().GetBool("otlp"); enabled {
		endpoint, _ := cmd.Flags().GetString("otlp-endpoint")
		_, shutdownTracing, err := crosswireotel.SetupTracing(cmd.Context(), crosswireotel.TracingConfig{
			Endpoint: endpoint,
			Insecure: endpoint != "",
		})
		if err != nil {
			return exitError(exitRuntime, "setting up tracing: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	observer, err := crosswireotel.NewToolObserver(
		otelapi.GetMeterProvider().Meter("crosswire"),
		otelapi.GetTracerProvider().Tracer("crosswire"),
	)
	if err != nil {
		return exitError(exitRuntime, "initializing observability: %v", err)
	}
	core.SetObserver(observer)
	defer core.SetObserver(nil)

	configs, err := resolveConfigs(cmd)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return exitError(exitValidation, "no providers configured; add one with 'crosswire providers add'")
	}

	callTimeout, _ := cmd.Flags().GetDuration("call-timeout")
	rt, err := startRuntime(cmd.Context(), logger, configs, callTimeout)
	if err != nil {
		return err
	}
	defer rt.stop(context.Background())

	// Keep the catalog aligned with provider topology.
	sub := rt.bus.SubscribeAll()
	defer sub.Close()
	go func() {
		for event := range sub.Events() {
			logger.Info("provider event",
				"kind", event.Kind,
				"provider_id", event.ProviderID,
				"detail", event.Detail)
			rt.registry.Refresh()
		}
	}()

	healthPoll, _ := cmd.Flags().GetDuration("health-poll")
	healthThreshold, _ := cmd.Flags().GetInt("health-threshold")
	disconnectUnhealthy, _ := cmd.Flags().GetBool("disconnect-unhealthy")

	scheduler, err := health.NewScheduler(health.SchedulerConfig{
		Target:              rt.supervisor,
		Bus:                 rt.bus,
		Logger:              logger,
		PollInterval:        healthPoll,
		FailureThreshold:    healthThreshold,
		DisconnectUnhealthy: disconnectUnhealthy,
	})
	if err != nil {
		return exitError(exitRuntime, "creating health scheduler: %v", err)
	}
	if err := scheduler.Start(cmd.Context()); err != nil {
		return exitError(exitRuntime, "starting health scheduler: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = scheduler.Stop(stopCtx)
	}()

	tools := rt.registry.List()
	fmt.Fprintf(cmd.OutOrStdout(), "crosswire running: %d provider(s), %d tool(s)\n",
		len(rt.supervisor.IDs()), len(tools))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
	return nil
}

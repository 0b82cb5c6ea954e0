package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crosswire-ai/crosswire/provider"
)

// NewProvidersCmd creates the "providers" command group.
func NewProvidersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage tool provider configurations",
	}
	cmd.PersistentFlags().String("store-path", "", "Provider store path (.json for file store, default: ~/.crosswire/crosswire.db)")

	cmd.AddCommand(newProvidersAddCmd())
	cmd.AddCommand(newProvidersRemoveCmd())
	cmd.AddCommand(newProvidersListCmd())
	cmd.AddCommand(newProvidersConnectCmd())
	cmd.AddCommand(newProvidersDisconnectCmd())

	return cmd
}

func newProvidersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a provider launch configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersAdd,
	}
	cmd.Flags().String("command", "", "Executable to spawn (required)")
	cmd.Flags().StringArray("arg", nil, "Command argument (repeatable)")
	cmd.Flags().StringArray("env", nil, "Environment entry KEY=VALUE (repeatable)")
	cmd.Flags().Bool("auto-connect", false, "Connect this provider on startup")
	cmd.Flags().String("health-schedule", "", "Cron expression for health checks (UTC)")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func runProvidersAdd(cmd *cobra.Command, args []string) error {
	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	command, _ := cmd.Flags().GetString("command")
	cmdArgs, _ := cmd.Flags().GetStringArray("arg")
	envFlags, _ := cmd.Flags().GetStringArray("env")
	autoConnect, _ := cmd.Flags().GetBool("auto-connect")
	healthSchedule, _ := cmd.Flags().GetString("health-schedule")

	env, err := parseKeyValues(envFlags)
	if err != nil {
		return exitError(exitValidation, "invalid --env flag: %v", err)
	}

	cfg := provider.Config{
		ID:             strings.TrimSpace(args[0]),
		Command:        command,
		Args:           cmdArgs,
		Env:            env,
		AutoConnect:    autoConnect,
		HealthSchedule: healthSchedule,
	}
	if err := cfg.Validate(); err != nil {
		return exitError(exitValidation, "%v", err)
	}

	if err := s.Upsert(cmd.Context(), cfg); err != nil {
		return exitError(exitRuntime, "saving provider: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added provider: %s\n", cfg.ID)
	return nil
}

func newProvidersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a provider configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersRemove,
	}
}

func runProvidersRemove(cmd *cobra.Command, args []string) error {
	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	id := args[0]
	if err := s.Delete(cmd.Context(), id); err != nil {
		return exitError(exitRuntime, "removing provider %q: %v", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed provider: %s\n", id)
	return nil
}

func newProvidersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provider configurations",
		RunE:  runProvidersList,
	}
}

func runProvidersList(cmd *cobra.Command, args []string) error {
	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	configs, err := s.List(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing providers: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCOMMAND\tARGS\tAUTO-CONNECT\tHEALTH-SCHEDULE")
	for _, cfg := range configs {
		argsCol := strings.Join(cfg.Args, " ")
		if argsCol == "" {
			argsCol = "-"
		}
		schedule := cfg.HealthSchedule
		if schedule == "" {
			schedule = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%t\t%s\n",
			cfg.ID, cfg.Command, argsCol, cfg.AutoConnect, schedule)
	}
	return writer.Flush()
}

func newProvidersConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <id>",
		Short: "Probe a provider and mark it for auto-connect",
		Long: "Spawns the provider, performs the handshake, reports its tools, " +
			"and on success marks the configuration auto-connect so the runtime " +
			"launches it.",
		Args: cobra.ExactArgs(1),
		RunE: runProvidersConnect,
	}
}

func runProvidersConnect(cmd *cobra.Command, args []string) error {
	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	id := args[0]
	cfg, found, err := s.Get(cmd.Context(), id)
	if err != nil {
		return exitError(exitRuntime, "loading provider: %v", err)
	}
	if !found {
		return exitError(exitValidation, "provider %q is not configured", id)
	}

	supervisor := provider.NewSupervisor(provider.SupervisorConfig{})
	defer func() { _ = supervisor.Shutdown(cmd.Context()) }()

	if err := supervisor.Add(cfg); err != nil {
		return exitError(exitValidation, "%v", err)
	}
	if err := supervisor.Connect(cmd.Context(), id); err != nil {
		return exitError(exitProvider, "connecting %q: %v", id, err)
	}

	tools, err := supervisor.Tools(id)
	if err != nil {
		return exitError(exitProvider, "listing tools for %q: %v", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s: %d tool(s)\n", id, len(tools))
	for _, tool := range tools {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", tool.Name)
	}

	if !cfg.AutoConnect {
		cfg.AutoConnect = true
		if err := s.Upsert(cmd.Context(), cfg); err != nil {
			return exitError(exitRuntime, "updating provider: %v", err)
		}
	}
	return nil
}

func newProvidersDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <id>",
		Short: "Clear a provider's auto-connect flag",
		Args:  cobra.ExactArgs(1),
		RunE:  runProvidersDisconnect,
	}
}

func runProvidersDisconnect(cmd *cobra.Command, args []string) error {
	s, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	id := args[0]
	cfg, found, err := s.Get(cmd.Context(), id)
	if err != nil {
		return exitError(exitRuntime, "loading provider: %v", err)
	}
	if !found {
		return exitError(exitValidation, "provider %q is not configured", id)
	}

	cfg.AutoConnect = false
	if err := s.Upsert(cmd.Context(), cfg); err != nil {
		return exitError(exitRuntime, "updating provider: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Provider %s will not auto-connect\n", id)
	return nil
}

// parseKeyValues parses repeated KEY=VALUE flags into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/crosswire-ai/crosswire/core"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and call tools across connected providers",
	}
	cmd.PersistentFlags().String("store-path", "", "Provider store path (.json for file store, default: ~/.crosswire/crosswire.db)")
	cmd.PersistentFlags().String("config", "", "Provider config file (overrides the store)")

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())

	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and provider tools",
		Long: "Connects every auto-connect provider, merges its tools with the " +
			"built-ins, and prints the catalog.",
		RunE: runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, args []string) error {
	configs, err := resolveConfigs(cmd)
	if err != nil {
		return err
	}

	rt, err := startRuntime(cmd.Context(), quietLogger(cmd), configs, 0)
	if err != nil {
		return err
	}
	defer rt.stop(cmd.Context())

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tORIGIN\tPROVIDER\tDESCRIPTION")
	for _, def := range rt.registry.List() {
		providerID := def.Origin.ProviderID
		if providerID == "" {
			providerID = "-"
		}
		description := def.Description
		if description == "" {
			description = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			def.Name, def.Origin.Kind, providerID, description)
	}
	return writer.Flush()
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Call a tool and print its result",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().StringArray("arg", nil, "Tool argument KEY=VALUE (repeatable)")
	cmd.Flags().String("json", "", "Tool arguments as a JSON object (overrides --arg)")
	cmd.Flags().Duration("timeout", 0, "Per-call timeout (default 30s)")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	callArgs, err := resolveCallArguments(cmd)
	if err != nil {
		return err
	}

	configs, err := resolveConfigs(cmd)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	rt, err := startRuntime(cmd.Context(), quietLogger(cmd), configs, timeout)
	if err != nil {
		return err
	}
	defer rt.stop(cmd.Context())

	call := core.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: callArgs,
	}
	result := rt.registry.Execute(cmd.Context(), call)
	if result.IsError {
		code := exitRuntime
		switch {
		case strings.HasPrefix(result.Content, core.ErrorCodeTimeout):
			code = exitTimeout
		case strings.HasPrefix(result.Content, core.ErrorCodeUnknownTool):
			code = exitValidation
		case strings.HasPrefix(result.Content, core.ErrorCodeDisconnected),
			strings.HasPrefix(result.Content, core.ErrorCodeTransportFailure),
			strings.HasPrefix(result.Content, core.ErrorCodeProtocolFailure):
			code = exitProvider
		}
		return exitError(code, "%s", result.Content)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Content)
	return nil
}

// resolveCallArguments builds the argument map from --json or repeated
// --arg flags. --arg values parse as JSON scalars first, falling back to
// plain strings.
func resolveCallArguments(cmd *cobra.Command) (map[string]any, error) {
	rawJSON, _ := cmd.Flags().GetString("json")
	if strings.TrimSpace(rawJSON) != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(rawJSON), &out); err != nil {
			return nil, exitError(exitValidation, "invalid --json argument: %v", err)
		}
		return out, nil
	}

	pairs, _ := cmd.Flags().GetStringArray("arg")
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, exitError(exitValidation, "invalid --arg flag: expected KEY=VALUE, got %q", pair)
		}
		out[strings.TrimSpace(key)] = coerceScalar(value)
	}
	return out, nil
}

// coerceScalar interprets a flag value as a JSON scalar when possible so
// --arg count=3 arrives as a number, not the string "3".
func coerceScalar(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		switch parsed.(type) {
		case bool, float64, nil:
			return parsed
		}
	}
	return value
}

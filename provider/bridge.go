package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/crosswire-ai/crosswire/core"
	"github.com/crosswire-ai/crosswire/rpc"
)

// Bridge converts provider tool catalogs into canonical definitions and
// forwards invocations through the supervisor's transport. It never panics
// and never returns tool output and an error together.
type Bridge struct {
	supervisor *Supervisor
}

// NewBridge creates a bridge over a supervisor.
func NewBridge(supervisor *Supervisor) *Bridge {
	return &Bridge{supervisor: supervisor}
}

// ListAll aggregates canonical tool definitions from every currently
// connected provider. Tools of a disconnected provider silently disappear
// from the aggregate view.
func (b *Bridge) ListAll() []core.ToolDefinition {
	if b == nil || b.supervisor == nil {
		return nil
	}

	catalogs := b.supervisor.ConnectedTools()
	providerIDs := make([]string, 0, len(catalogs))
	for providerID := range catalogs {
		providerIDs = append(providerIDs, providerID)
	}
	sort.Strings(providerIDs)

	defs := make([]core.ToolDefinition, 0)
	for _, providerID := range providerIDs {
		for _, remote := range catalogs[providerID] {
			defs = append(defs, toDefinition(providerID, remote))
		}
	}
	return defs
}

// Execute invokes a remote tool via tools/call, concatenates the textual
// content blocks of the response, and returns the result or an error value.
// Transport and protocol failures come back as the error, never as a panic.
func (b *Bridge) Execute(ctx context.Context, providerID, toolName string, args map[string]any) (string, error) {
	if b == nil || b.supervisor == nil {
		return "", errors.New("provider: bridge has no supervisor")
	}

	raw, err := b.supervisor.Send(ctx, providerID, rpc.MethodToolsCall, rpc.ToolsCallParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	var result rpc.ToolsCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", core.NewToolError(core.ErrorCodeProtocolFailure,
			fmt.Sprintf("provider %q returned an undecodable tools/call result", providerID), err)
	}

	text := collectText(result.Content)
	if result.IsError {
		detail := text
		if detail == "" {
			detail = fmt.Sprintf("tool %q reported an error", toolName)
		}
		return "", core.NewToolError(core.ErrorCodeProtocolFailure, detail, nil)
	}

	return normalizeText(text), nil
}

// toDefinition maps one advertised remote tool into the canonical shape,
// carrying the remote schema through unmodified.
func toDefinition(providerID string, remote rpc.RemoteTool) core.ToolDefinition {
	return core.ToolDefinition{
		Name:        remote.Name,
		Description: remote.Description,
		InputSchema: convertSchema(remote.InputSchema),
		Origin: core.Origin{
			Kind:       core.OriginProvider,
			ProviderID: providerID,
			RemoteName: remote.Name,
		},
	}
}

func convertSchema(raw map[string]any) core.InputSchema {
	schema := core.InputSchema{Type: "object"}
	if raw == nil {
		return schema
	}

	if t, ok := raw["type"].(string); ok && t != "" {
		schema.Type = t
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]core.PropertySchema, len(props))
		for name, value := range props {
			prop := core.PropertySchema{}
			if fields, ok := value.(map[string]any); ok {
				if t, ok := fields["type"].(string); ok {
					prop.Type = t
				}
				if d, ok := fields["description"].(string); ok {
					prop.Description = d
				}
			}
			schema.Properties[name] = prop
		}
	}
	if required, ok := raw["required"].([]any); ok {
		for _, item := range required {
			if name, ok := item.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	return schema
}

// collectText concatenates text content blocks; non-text blocks are ignored.
func collectText(content []rpc.ContentBlock) string {
	parts := make([]string, 0, len(content))
	for _, block := range content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// normalizeText re-encodes text that parses as structured data, falling back
// to the raw string otherwise.
func normalizeText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return text
	}
	switch decoded.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(decoded)
		if err != nil {
			return text
		}
		return string(data)
	default:
		return text
	}
}

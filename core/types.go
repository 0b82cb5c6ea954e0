// Package core provides the foundational types for the Crosswire tool
// substrate.
//
// This package contains:
//   - Canonical tool shapes: ToolDefinition, InputSchema, Origin
//   - Dispatch types: ToolCall, ToolResult, Handler
//   - The structured error taxonomy shared by all dispatch paths
package core

import "context"

// OriginKind identifies where a tool's implementation lives.
type OriginKind string

const (
	// OriginBuiltin marks a tool backed by an in-process handler.
	OriginBuiltin OriginKind = "builtin"
	// OriginProvider marks a tool bridged from an external provider process.
	OriginProvider OriginKind = "provider"
)

// String returns the string representation of the OriginKind.
func (k OriginKind) String() string {
	return string(k)
}

// Origin tags a tool definition with its implementation source.
// For provider-backed tools, ProviderID and RemoteName identify the
// (provider, remote tool) pair the call must be routed to.
type Origin struct {
	Kind       OriginKind `json:"kind"`
	ProviderID string     `json:"provider_id,omitempty"`
	RemoteName string     `json:"remote_name,omitempty"`
}

// PropertySchema describes one named property of a tool's input object.
type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// InputSchema is the JSON-schema-like shape describing a tool's arguments.
// Remote schemas are carried through unmodified; built-in tools declare
// theirs at registration time.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// ToolDefinition is the origin-independent tool shape used for listing and
// dispatch. Name is unique within the merged namespace.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"input_schema"`
	Origin      Origin      `json:"origin"`
}

// ToolCall is one requested invocation. ID is caller-supplied and opaque;
// it is echoed back on the matching ToolResult.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of one ToolCall. Dispatch always produces a
// result; failures are reported through IsError, never as a panic or an
// error escaping the registry boundary.
type ToolResult struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Handler is a built-in tool implementation supplied by the host.
type Handler func(ctx context.Context, args map[string]any) (string, error)

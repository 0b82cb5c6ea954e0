// Package rpc defines the line-delimited JSON-RPC 2.0 wire shapes spoken
// between Crosswire and external tool provider processes. One JSON object is
// written per line on the child's stdin and read per line from its stdout;
// stderr is a free-text log stream and is never protocol-parsed.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version tag carried on every message.
const Version = "2.0"

// Protocol method names understood by providers.
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
)

// Message is a JSON-RPC 2.0 envelope. A request carries Method and Params;
// a response carries Result or Error for the request with the same ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsResponse reports whether the message correlates to an outstanding
// request rather than being a server-initiated notification.
func (m Message) IsResponse() bool {
	return m.ID != 0 && m.Method == ""
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == 0 {
		return fmt.Sprintf("rpc: remote error: %s", e.Message)
	}
	return fmt.Sprintf("rpc: remote error %d: %s", e.Code, e.Message)
}

// RequestError wraps transport or protocol failures in the request flow.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc: request %q failed: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientInfo identifies Crosswire when opening a provider session.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo describes the connected provider process.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams is sent in the mandatory initialize handshake.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// InitializeResult is returned by the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// RemoteTool describes one tool advertised by a provider via tools/list.
type RemoteTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolsListResult is returned by the tools/list request.
type ToolsListResult struct {
	Tools []RemoteTool `json:"tools"`
}

// ToolsCallParams is sent in the tools/call request.
type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is one content item returned by tools/call. Only text blocks
// participate in result extraction; other types are ignored by the bridge.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolsCallResult is returned by the tools/call request.
type ToolsCallResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}

// MarshalParams encodes request params as a raw JSON value.
func MarshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode params: %w", err)
	}
	return data, nil
}

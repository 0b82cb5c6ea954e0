package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodeConfigRejected is returned when the command validator rejects
	// a provider launch configuration.
	ErrorCodeConfigRejected = "CONFIG_REJECTED"
	// ErrorCodeTransportFailure is returned when spawn, handshake, or pipe
	// I/O fails.
	ErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ErrorCodeProtocolFailure is returned when the remote side answers with
	// a protocol-level error field.
	ErrorCodeProtocolFailure = "PROTOCOL_FAILURE"
	// ErrorCodeTimeout is returned when no response arrives within the window.
	ErrorCodeTimeout = "TIMEOUT"
	// ErrorCodeExecutionFailed is returned when a built-in handler fails.
	ErrorCodeExecutionFailed = "EXECUTION_FAILED"
	// ErrorCodeUnknownTool is returned when no registered tool matches a call.
	ErrorCodeUnknownTool = "UNKNOWN_TOOL"
	// ErrorCodeDisconnected is returned when the owning provider process
	// closed while the call was in flight.
	ErrorCodeDisconnected = "DISCONNECTED"
)

// ToolError is a structured dispatch error that carries a machine-readable
// code across the supervisor, bridge, and registry layers.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ErrorCodeExecutionFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewToolError builds a ToolError, deriving the message from cause when no
// explicit message is given.
func NewToolError(code, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ErrorCodeExecutionFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

// ErrorCode extracts the taxonomy code from err, or fallback when err does
// not carry one.
func ErrorCode(err error, fallback string) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil && strings.TrimSpace(toolErr.Code) != "" {
		return toolErr.Code
	}
	if strings.TrimSpace(fallback) == "" {
		return ErrorCodeExecutionFailed
	}
	return fallback
}

package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestToolErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ToolError
		want string
	}{
		{
			name: "code and message",
			err:  &ToolError{Code: ErrorCodeTimeout, Message: "no response after 30s"},
			want: "TIMEOUT: no response after 30s",
		},
		{
			name: "code only",
			err:  &ToolError{Code: ErrorCodeUnknownTool},
			want: "UNKNOWN_TOOL",
		},
		{
			name: "message only",
			err:  &ToolError{Message: "boom"},
			want: "boom",
		},
		{
			name: "empty falls back to execution code",
			err:  &ToolError{},
			want: ErrorCodeExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolErrorUnwrap(t *testing.T) {
	cause := errors.New("pipe closed")
	err := NewToolError(ErrorCodeDisconnected, "", cause)

	if err.Message != "pipe closed" {
		t.Fatalf("Message = %q, want cause text", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", NewToolError(ErrorCodeProtocolFailure, "bad reply", nil))

	if got := ErrorCode(wrapped, ErrorCodeExecutionFailed); got != ErrorCodeProtocolFailure {
		t.Fatalf("ErrorCode(wrapped) = %q, want %q", got, ErrorCodeProtocolFailure)
	}
	if got := ErrorCode(errors.New("plain"), ErrorCodeTimeout); got != ErrorCodeTimeout {
		t.Fatalf("ErrorCode(plain) = %q, want fallback %q", got, ErrorCodeTimeout)
	}
	if got := ErrorCode(errors.New("plain"), ""); got != ErrorCodeExecutionFailed {
		t.Fatalf("ErrorCode(plain, empty fallback) = %q, want %q", got, ErrorCodeExecutionFailed)
	}
}

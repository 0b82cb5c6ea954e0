package rpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	params, err := MarshalParams(ToolsCallParams{
		Name:      "search",
		Arguments: map[string]any{"query": "tides"},
	})
	if err != nil {
		t.Fatalf("MarshalParams() error = %v", err)
	}

	request := Message{
		JSONRPC: Version,
		ID:      7,
		Method:  MethodToolsCall,
		Params:  params,
	}
	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ID != 7 || decoded.Method != MethodToolsCall {
		t.Fatalf("decoded = %+v, want id=7 method=%s", decoded, MethodToolsCall)
	}

	var callParams ToolsCallParams
	if err := json.Unmarshal(decoded.Params, &callParams); err != nil {
		t.Fatalf("Unmarshal(params) error = %v", err)
	}
	if callParams.Name != "search" {
		t.Fatalf("params.Name = %q, want search", callParams.Name)
	}
}

func TestMessageIsResponse(t *testing.T) {
	tests := []struct {
		name    string
		message Message
		want    bool
	}{
		{
			name:    "result response",
			message: Message{JSONRPC: Version, ID: 3, Result: json.RawMessage(`{}`)},
			want:    true,
		},
		{
			name:    "error response",
			message: Message{JSONRPC: Version, ID: 4, Error: &RPCError{Message: "nope"}},
			want:    true,
		},
		{
			name:    "notification",
			message: Message{JSONRPC: Version, Method: "notifications/progress"},
			want:    false,
		},
		{
			name:    "request",
			message: Message{JSONRPC: Version, ID: 5, Method: "ping"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.message.IsResponse(); got != tt.want {
				t.Fatalf("IsResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRPCErrorText(t *testing.T) {
	withCode := &RPCError{Code: -32601, Message: "method not found"}
	if !strings.Contains(withCode.Error(), "-32601") {
		t.Fatalf("Error() = %q, want code included", withCode.Error())
	}

	bare := &RPCError{Message: "tool exploded"}
	if got := bare.Error(); got != "rpc: remote error: tool exploded" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestRequestErrorUnwrap(t *testing.T) {
	cause := &RPCError{Code: 1, Message: "bad"}
	err := &RequestError{Method: MethodToolsList, Err: cause}

	if !strings.Contains(err.Error(), MethodToolsList) {
		t.Fatalf("Error() = %q, want method name included", err.Error())
	}
	if err.Unwrap() != cause {
		t.Fatalf("Unwrap() = %v, want cause", err.Unwrap())
	}
}

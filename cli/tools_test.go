package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestToolsListShowsBuiltins(t *testing.T) {
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "tools", "list", "--store-path", tempStorePath(t))
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(stdout, "echo") || !strings.Contains(stdout, "time_now") {
		t.Fatalf("list output missing built-ins: %q", stdout)
	}
	if !strings.Contains(stdout, "builtin") {
		t.Fatalf("list output missing origin column: %q", stdout)
	}
}

func TestToolsCallEcho(t *testing.T) {
	root := newTestRoot()
	stdout, _, err := executeCommand(root,
		"tools", "call", "echo",
		"--store-path", tempStorePath(t),
		"--arg", "text=hello there")
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if !strings.Contains(stdout, "hello there") {
		t.Fatalf("call output = %q, want echoed text", stdout)
	}
}

func TestToolsCallJSONArguments(t *testing.T) {
	root := newTestRoot()
	stdout, _, err := executeCommand(root,
		"tools", "call", "echo",
		"--store-path", tempStorePath(t),
		"--json", `{"text":"from json"}`)
	if err != nil {
		t.Fatalf("call error = %v", err)
	}
	if !strings.Contains(stdout, "from json") {
		t.Fatalf("call output = %q, want echoed text", stdout)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	root := newTestRoot()
	_, _, err := executeCommand(root,
		"tools", "call", "no_such_tool",
		"--store-path", tempStorePath(t))
	if err == nil {
		t.Fatal("call expected error for unknown tool")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("call error = %v, want validation exit code", err)
	}
	if !strings.Contains(err.Error(), "UNKNOWN_TOOL") {
		t.Fatalf("call error = %q, want UNKNOWN_TOOL code", err)
	}
}

func TestToolsCallRejectsBadJSON(t *testing.T) {
	root := newTestRoot()
	_, _, err := executeCommand(root,
		"tools", "call", "echo",
		"--store-path", tempStorePath(t),
		"--json", "{not json")
	if err == nil {
		t.Fatal("call expected error for malformed --json")
	}
}

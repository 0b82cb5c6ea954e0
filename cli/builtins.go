package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/crosswire-ai/crosswire/core"
	"github.com/crosswire-ai/crosswire/registry"
)

// registerBuiltins installs the host-side tools every crosswire build ships
// with. Both work without any provider attached.
func registerBuiltins(reg *registry.Registry) error {
	echo := core.ToolDefinition{
		Name:        "echo",
		Description: "Return the given text unchanged.",
		InputSchema: core.InputSchema{
			Type: "object",
			Properties: map[string]core.PropertySchema{
				"text": {Type: "string", Description: "Text to echo back."},
			},
			Required: []string{"text"},
		},
	}
	if err := reg.Register(echo, echoHandler); err != nil {
		return err
	}

	timeNow := core.ToolDefinition{
		Name:        "time_now",
		Description: "Return the current time in RFC 3339 format (UTC).",
		InputSchema: core.InputSchema{Type: "object"},
	}
	return reg.Register(timeNow, timeNowHandler)
}

func echoHandler(ctx context.Context, args map[string]any) (string, error) {
	text, ok := args["text"].(string)
	if !ok {
		return "", fmt.Errorf("echo: argument %q must be a string", "text")
	}
	return text, nil
}

func timeNowHandler(ctx context.Context, args map[string]any) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

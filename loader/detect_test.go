package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data string
		path string
		want Format
	}{
		{"yaml extension", "providers: []", "config.yaml", FormatYAML},
		{"yml extension", "providers: []", "config.yml", FormatYAML},
		{"json extension", `{"providers":[]}`, "config.json", FormatJSON},
		{"extension wins over content", `{"providers":[]}`, "config.yaml", FormatYAML},
		{"no extension, json object", `  {"providers":[]}`, "config", FormatJSON},
		{"no extension, json array", `[]`, "config", FormatJSON},
		{"no extension, yaml content", "providers:\n  - id: a", "config", FormatYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat([]byte(tt.data), tt.path))
		})
	}
}

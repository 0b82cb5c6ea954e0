// Package loader reads provider configuration documents in JSON and YAML
// formats and turns them into validated launch configurations.
package loader

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format identifies the parse format of a configuration document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DetectFormat determines the parse format from the file path and, when the
// extension is ambiguous, from the content:
//  1. .yaml/.yml extension -> YAML; .json extension -> JSON
//  2. Otherwise, content starting with '{' or '[' -> JSON
//  3. Else YAML (a superset of JSON, so this is the safe fallback)
func DetectFormat(data []byte, filePath string) Format {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return FormatJSON
	}
	return FormatYAML
}

// toJSON converts document bytes to JSON, handling YAML conversion when the
// detected format requires it. YAML parsing goes through map[string]any so
// the result is JSON-compatible.
func toJSON(data []byte, format Format) ([]byte, error) {
	if format == FormatJSON {
		return data, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}

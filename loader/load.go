package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/crosswire-ai/crosswire/provider"
)

// Document is the on-disk shape of a provider configuration file.
type Document struct {
	Providers []provider.Config `json:"providers" yaml:"providers"`
}

// Load reads a provider configuration file, auto-detects its format, and
// returns the validated launch configurations in document order.
func Load(path string) ([]provider.Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return LoadBytes(data, path)
}

// LoadBytes parses document bytes. The path is used only for format
// detection and error messages.
func LoadBytes(data []byte, path string) ([]provider.Config, error) {
	jsonData, err := toJSON(data, DetectFormat(data, path))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("loading %s: no providers defined", path)
	}

	seen := make(map[string]bool, len(doc.Providers))
	for i, cfg := range doc.Providers {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("loading %s: provider %d (%q): %w", path, i, cfg.ID, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("loading %s: duplicate provider id %q", path, cfg.ID)
		}
		seen[cfg.ID] = true
	}

	return doc.Providers, nil
}

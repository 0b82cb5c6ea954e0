package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/crosswire-ai/crosswire/provider"
)

const (
	fileStoreVersionV1 = "1"
	defaultStoreDir    = ".crosswire"
	defaultStoreFile   = "providers.json"
)

var errEmptyStorePath = errors.New("store: file path is empty")

type fileStoreDocument struct {
	Version   string            `json:"version"`
	Providers []provider.Config `json:"providers"`
}

// FileStore persists provider configs in a local JSON file.
// This store is intended for CLI mode.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed config store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NewDefaultFileStore creates a store at ~/.crosswire/providers.json.
func NewDefaultFileStore() (*FileStore, error) {
	path, err := DefaultStorePath()
	if err != nil {
		return nil, err
	}
	return NewFileStore(path), nil
}

// DefaultStorePath returns the default config file path for CLI mode.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreFile), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// List returns all configs in deterministic (id-sorted) order.
func (s *FileStore) List(ctx context.Context) ([]provider.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("store: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Get returns a config by provider id.
func (s *FileStore) Get(ctx context.Context, providerID string) (provider.Config, bool, error) {
	configs, err := s.List(ctx)
	if err != nil {
		return provider.Config{}, false, err
	}
	for _, cfg := range configs {
		if cfg.ID == providerID {
			return cfg, true, nil
		}
	}
	return provider.Config{}, false, nil
}

// Upsert inserts or updates a config by provider id. The launch tuple is
// validated before anything touches disk.
func (s *FileStore) Upsert(ctx context.Context, cfg provider.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store: file store is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return err
	}

	index := -1
	for i := range configs {
		if configs[i].ID == cfg.ID {
			index = i
			break
		}
	}
	if index >= 0 {
		configs[index] = cfg
	} else {
		configs = append(configs, cfg)
	}
	return s.save(configs)
}

// Delete removes a config by provider id. Deleting a missing id is a no-op.
func (s *FileStore) Delete(ctx context.Context, providerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	configs, err := s.load()
	if err != nil {
		return err
	}

	filtered := make([]provider.Config, 0, len(configs))
	for _, cfg := range configs {
		if cfg.ID != providerID {
			filtered = append(filtered, cfg)
		}
	}
	return s.save(filtered)
}

func (s *FileStore) load() ([]provider.Config, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	// #nosec G304 -- path is configured by caller and constrained to local filesystem usage.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []provider.Config{}, nil
		}
		return nil, fmt.Errorf("store: read configs: %w", err)
	}
	if len(data) == 0 {
		return []provider.Config{}, nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: decode configs: %w", err)
	}
	sortConfigs(doc.Providers)
	return doc.Providers, nil
}

func (s *FileStore) save(configs []provider.Config) error {
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}
	sortConfigs(configs)

	doc := fileStoreDocument{
		Version:   fileStoreVersionV1,
		Providers: configs,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode configs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("store: create store dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("store: write configs: %w", err)
	}
	return nil
}

func sortConfigs(configs []provider.Config) {
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

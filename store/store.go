// Package store persists provider launch configurations for CLI and daemon
// use. Only configurations are stored: runtime state (connections, tool
// caches, pending requests) never survives a restart.
package store

import (
	"context"
	"errors"

	"github.com/crosswire-ai/crosswire/provider"
)

// ErrNotFound is returned when a provider id has no stored configuration.
var ErrNotFound = errors.New("store: provider config not found")

// Store abstracts provider-config persistence for file and SQLite backends.
type Store interface {
	List(ctx context.Context) ([]provider.Config, error)
	Get(ctx context.Context, providerID string) (provider.Config, bool, error)
	Upsert(ctx context.Context, cfg provider.Config) error
	Delete(ctx context.Context, providerID string) error
}

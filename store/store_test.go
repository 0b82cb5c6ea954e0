package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosswire-ai/crosswire/provider"
)

func testConfig(id string) provider.Config {
	return provider.Config{
		ID:          id,
		Command:     "python3",
		Args:        []string{"-m", "tool_server"},
		Env:         map[string]string{"PORT": "3001"},
		AutoConnect: true,
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "crosswire.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "providers.json")),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			configs, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, configs)

			require.NoError(t, s.Upsert(ctx, testConfig("weather")))
			require.NoError(t, s.Upsert(ctx, testConfig("search")))

			configs, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, configs, 2)
			assert.Equal(t, "search", configs[0].ID, "list must be id-sorted")
			assert.Equal(t, "weather", configs[1].ID)

			got, found, err := s.Get(ctx, "weather")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, testConfig("weather"), got)

			_, found, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, testConfig("weather")))

			updated := testConfig("weather")
			updated.Args = []string{"-m", "tool_server", "--verbose"}
			require.NoError(t, s.Upsert(ctx, updated))

			configs, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, configs, 1)
			assert.Equal(t, updated.Args, configs[0].Args)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Upsert(ctx, testConfig("weather")))
			require.NoError(t, s.Delete(ctx, "weather"))

			configs, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, configs)

			// Deleting a missing id is a no-op.
			require.NoError(t, s.Delete(ctx, "weather"))
		})
	}
}

func TestStoreRejectsInvalidConfig(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			bad := testConfig("evil")
			bad.Args = []string{"server.js; rm -rf /"}
			assert.Error(t, s.Upsert(ctx, bad))

			blocked := testConfig("hijack")
			blocked.Env = map[string]string{"LD_PRELOAD": "/tmp/x.so"}
			assert.Error(t, s.Upsert(ctx, blocked))

			configs, err := s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, configs, "rejected configs must not be persisted")
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	ctx := context.Background()

	first := NewFileStore(path)
	require.NoError(t, first.Upsert(ctx, testConfig("weather")))

	second := NewFileStore(path)
	configs, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, testConfig("weather"), configs[0])
}

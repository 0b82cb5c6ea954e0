package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crosswire-ai/crosswire/store"
)

// resolveStore opens the provider-config store named by --store-path or
// CROSSWIRE_STORE_PATH. Paths ending in .json open the JSON file store,
// everything else opens SQLite. The default is the SQLite store under
// ~/.crosswire.
func resolveStore(cmd *cobra.Command) (store.Store, func(), error) {
	storePath, _ := cmd.Flags().GetString("store-path")
	if strings.TrimSpace(storePath) == "" {
		storePath = os.Getenv("CROSSWIRE_STORE_PATH")
	}

	if strings.TrimSpace(storePath) == "" {
		sqlite, err := store.NewDefaultSQLiteStore()
		if err != nil {
			return nil, nil, exitError(exitRuntime, "opening provider store: %v", err)
		}
		return sqlite, func() { _ = sqlite.Close() }, nil
	}

	clean := filepath.Clean(strings.TrimSpace(storePath))
	if strings.EqualFold(filepath.Ext(clean), ".json") {
		return store.NewFileStore(clean), func() {}, nil
	}

	sqlite, err := store.NewSQLiteStore(clean)
	if err != nil {
		return nil, nil, exitError(exitRuntime, "opening provider store: %v", err)
	}
	return sqlite, func() { _ = sqlite.Close() }, nil
}

// Package sqlite provides the public API for the SQLite sectional store.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"log"

	"github.com/mesh-intelligence/sectional/internal/sqlite"
	"github.com/mesh-intelligence/sectional/pkg/types"
)

// NewBackend creates a new SQLite store. The store is not attached; call
// Attach with a Config to open it. A nil logger discards diagnostics.
//
// Example:
//
//	store := sqlite.NewBackend(nil)
//	err := store.Attach(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".sectional-db",
//	})
//	defer store.Detach()
func NewBackend(logger *log.Logger) types.Store {
	return sqlite.NewBackend(sqlite.WithLogger(logger))
}

// Package database provides SQLite-based storage for snapshot history.
//
// This package implements the SnapshotDB, which stores:
//   - One row per finished bundle build with its full manifest
//   - One row per localized asset for cross-build queries
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database

// Package repositories implements SQLite persistence for the migration run history.
//
// Each repository handles CRUD operations with soft deletes via deleted_at timestamps and excludes deleted
// records from queries by default.
//
// Key Implementations:
//   - [RunRepository] : One row per migration invocation with its window, paging and final counters
//   - [OutcomeRepository] : Per-entity dispositions recorded while a run is in progress
//
// Runs carry a sequence number for stable, human-readable ordering (e.g. run #42) independent of UUIDs and
// timestamps. The [NextSequence] function atomically increments per-table sequence counters in dedicated
// sequence tables.
package repositories

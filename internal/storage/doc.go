// Package storage persists the per-user cooldown ledger: one last-request
// timestamp per user id.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite database file (default)
//   - "file":   JSON snapshot plus append-only journal
//   - "memory": process-local map, for tests and throwaway runs
//   - "redis":  one key per user under a configurable prefix
//   - "postgres": GORM over the pgx-backed postgres driver
package storage

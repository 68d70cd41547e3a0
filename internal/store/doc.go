// Package store persists materialization records and dynamic partition keys
// in SQLite.
//
// The materializations table is append-only: triggers reject UPDATE and
// DELETE, and appends are idempotent on the content-addressed record ID.
// Every read orders by seq, then id, so results are identical across runs:
//
//	ORDER BY seq ASC, id COLLATE BINARY ASC
//
// Dynamic partition keys are appended per definition name and read back in
// insertion order; existing keys are never reordered or removed.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - one open connection, so ":memory:" databases work for tests
package store

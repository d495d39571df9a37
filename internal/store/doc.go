// Package store provides SQLite-backed durable storage for claim sessions.
//
// The store has independent tiers that share one database file:
//   - kv: synchronous string-keyed JSON values (step position, timing,
//     completed sections, per-step form snapshots)
//   - submissions: the durable FIFO of queued submissions
//   - form_data: whole-form records keyed by form id
//   - assets: cached static assets grouped by cache name
//
// Clearing the kv tier never touches the submissions backlog.
//
// # Serialization
//
// Every value crosses a single JSON boundary (encodeValue/decodeValue).
// Callers hand in Go values and never build JSON strings themselves.
//
// # Failure semantics
//
// GetItem reports a missing or corrupt key as absent and never returns an
// error. Structured-tier operations each run in one transaction, so a failed
// operation leaves previously committed entries untouched.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Two drivers are supported: the cgo driver "sqlite3" (default) and the
// pure-Go driver "sqlite".
package store

// Package store provides SQLite-backed history of what the sort pipeline
// published.
//
// The store is an append-only log with:
//   - Load orders: every published order with the sort id that produced it
//   - Activities: start/stop markers around engine work
//   - Notifications: user-facing messages, including failures
//
// # Ordering
//
// All ordering uses the seq column, never recorded_at. Queries include
// ORDER BY seq so results are identical across runs with a fixed clock.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Recorder adapts a Store to autosort.Host so a running service writes its
// history as a side effect of publishing.
package store

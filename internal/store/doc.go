// Package store provides SQLite-backed storage for the content pipeline.
//
// Three tables back every stage:
//   - draft_rows: mutable generated rows, keyed by (store, scope, ordinal)
//   - approved_records: immutable copies written by approval
//   - translations: persisted tier of the translation cache
//
// A stage's draft and approved stores are logical: the store column names
// them, so adding a stage never needs a migration.
//
// # Critical Patterns
//
// Deterministic reads: every list query orders by ordinal ASC, id ASC
// COLLATE BINARY, so repeated reads of the same data are identical.
//
// Single connection: the pool is capped at one connection, which serializes
// transactions in-process. Read-merge-write patches inside one transaction
// therefore give field-level last-write-wins without locks.
//
// Whole-set writes: bulk insert and approval each run in one transaction;
// a failure leaves the previous rows intact.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Payloads are stored as canonical JSON (internal/ir/canonical.go).
package store

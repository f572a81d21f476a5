// Package store provides durable storage for orders, automation rules,
// execution records and the debounce ledger.
//
// Three implementations share one Store interface:
//
//   - SQLite (primary): single-writer embedded database with WAL mode.
//     Matches the deployment where the core runs inside the host application.
//   - Postgres: pgx-backed implementation for shared deployments.
//   - Memory: mutex-guarded maps for tests.
//
// WRITE-BOUNDARY INVARIANTS:
//
// Dependency edges are committed inside a transaction that re-certifies the
// edge against the current graph. Two concurrent edge inserts on the same
// graph can each look legal in isolation while jointly forming a cycle, so
// the certify-then-insert step must be atomic per graph.
//
// The debounce ledger is a keyed, conditionally written record. A claim is a
// compare-and-swap against the previous claim time - never a read followed by
// a separate write - so concurrent evaluation passes of the same rule cannot
// both decide "not debounced". The redis ledger in this package offers the
// same contract for hosts that want the ledger off the primary store.
//
// Execution records are append-only and never mutated.
package store

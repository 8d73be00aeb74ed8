// Package store provides SQLite-backed durable storage for finished
// test runs.
//
// A run is saved atomically: the runs row and every ops row land in one
// transaction, so readers never observe a partial history. Saving the
// same run id twice is a no-op.
//
// All JSON stored here is canonical (sorted keys, NFC strings, no HTML
// escaping) so that identical runs produce byte-identical rows and the
// fingerprint column is stable across machines.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store

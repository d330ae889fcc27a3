// Package custody stores evidence versions for the reference ledger.
//
// Every evidence identifier owns an append-only chain of versions numbered
// 1, 2, 3... Each version records the hash of its predecessor (GenesisHash
// for version 1) and a SHA-256 over its own fields, so any edit to a stored
// version breaks Verify.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for tests and single-process demos.
//   - BoltStore: a bbolt file, for a durable single-node ledger.
//   - PostgresStore: PostgreSQL via pgx, for shared deployments.
package custody

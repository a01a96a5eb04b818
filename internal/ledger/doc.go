// Package ledger records which plan steps completed, so that re-running a
// fetch never repeats finished work or corrupts data that is already staged.
//
// # Entries
//
// Each completed step is stored as an Entry keyed by its step ID. The entry
// carries a fingerprint of the step's decoded arguments: if the plan changes
// (a different URL, a different destination), the fingerprint no longer
// matches and the step runs again. The step's output is kept in its
// JSON-encoded cty form so dependents can still reference it on a cached run.
//
// # Implementations
//
//   - BadgerStore: persistent, backed by github.com/dgraph-io/badger/v4.
//     This is the default and lives next to the staged data.
//   - MemStore: ephemeral, used by tests and by `--ledger memory` when a
//     one-off run should not leave state behind.
//
// All implementations are safe for concurrent use.
package ledger

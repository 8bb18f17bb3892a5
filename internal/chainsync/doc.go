// Package chainsync keeps local account states in step with the ledger.
//
// Every account action reveals one nullifier hash, so the block holding the next
// action of a state is found by looking up the hash of the nullifier that action
// must reveal. The events of that block are projected onto the state; exactly one of
// them must reproduce its note. Finder does one such step, Synchronizer repeats it
// and persists each result, and HistoryFetcher replays it from an empty state.
package chainsync

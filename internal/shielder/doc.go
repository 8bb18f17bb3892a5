// Package shielder holds the shared vocabulary of the shielded-balance client engine.
//
// Overview:
//   - A private account lives off-chain as an AccountState; on-chain it is only a note
//     commitment and the hash of a nullifier
//   - Every balance change is authorized by a proof built from per-action advice
//   - The proof oracle, the ledger, the relay and raw persistence are collaborators
//     described by the interfaces in this package
//
// Notes:
//   - note = H(noteVersion, id, nullifier(id, nonce), H(balance, token, 0...))
//   - Before the first action the account id itself takes the nullifier position
//     (the pre-nullifier)
//   - Events carry a 3-byte protocol version; unsupported versions are never accepted
//
// Other packages build on these types: state (registry and identifiers), storage
// (persisted records), transactions (actions), chainsync (synchronization), client (facade).
package shielder

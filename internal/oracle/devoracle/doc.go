// Package devoracle is a deterministic proof oracle for development and tests.
//
// It hashes with MiMC over the bn254 scalar field, derives secrets with keccak256
// reduced modulo the field order, and "proves" by checking the statement in the clear
// and emitting a keccak transcript of the public inputs.
//
// WARNING: proofs produced here are neither zero-knowledge nor sound. Never point a
// production ledger at this oracle.
package devoracle

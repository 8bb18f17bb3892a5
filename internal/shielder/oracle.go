// oracle.go - Interfaces of the proof oracle.
//
// The oracle owns all circuit cryptography: hashing, secret derivation, tree shape,
// proving and verification. Implementations may be remote, so every call takes a context.

package shielder

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Secrets are derived per (id, nonce).
type Secrets struct {
	Nullifier Scalar
	Trapdoor  Scalar
}

// Hasher is the field hash used for notes and nullifiers.
type Hasher interface {
	Hash(ctx context.Context, inputs []Scalar) (Scalar, error)
	// Rate is the number of inputs absorbed per permutation.
	Rate(ctx context.Context) (int, error)
}

// SecretManager derives account secrets from the seed.
type SecretManager interface {
	DeriveSecrets(ctx context.Context, id Scalar, nonce uint64) (Secrets, error)
	DeriveID(ctx context.Context, seed []byte, chainID uint64, token common.Address) (Scalar, error)
}

// TreeConfig describes the note tree shape.
type TreeConfig interface {
	Height(ctx context.Context) (int, error)
	Arity(ctx context.Context) (int, error)
}

// Circuit proves and verifies one action kind.
type Circuit[A, P any] interface {
	Prove(ctx context.Context, advice A) ([]byte, error)
	PublicInputs(ctx context.Context, advice A) (P, error)
	Verify(ctx context.Context, proof []byte, inputs P) (bool, error)
}

// CryptoClient bundles every oracle capability.
type CryptoClient struct {
	Hasher     Hasher
	Secrets    SecretManager
	Tree       TreeConfig
	NewAccount Circuit[NewAccountAdvice, NewAccountPublicInputs]
	Deposit    Circuit[DepositAdvice, DepositPublicInputs]
	Withdraw   Circuit[WithdrawAdvice, WithdrawPublicInputs]
}

// HashNullifier hashes a nullifier (or the pre-nullifier) the way the ledger records it.
func HashNullifier(ctx context.Context, h Hasher, nullifier Scalar) (Scalar, error) {
	return h.Hash(ctx, []Scalar{nullifier})
}

// NullifierForNextAction returns the value the next action of s reveals: the account id
// when nonce is 0, else the nullifier of (id, nonce-1).
func NullifierForNextAction(ctx context.Context, sm SecretManager, s *AccountState) (Scalar, error) {
	if s.Nonce == 0 {
		return s.ID, nil
	}
	secrets, err := sm.DeriveSecrets(ctx, s.ID, s.Nonce-1)
	if err != nil {
		return Scalar{}, err
	}
	return secrets.Nullifier, nil
}

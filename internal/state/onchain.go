// onchain.go - Checks that a local state matches the note tree.

package state

import (
	"context"
	"fmt"
	"math/big"

	"shielder/internal/shielder"
)

// MerklePathSource fetches note tree paths.
type MerklePathSource interface {
	GetMerklePath(ctx context.Context, noteIndex *big.Int) ([]*big.Int, error)
}

// AccountOnchain checks local states against the note tree.
type AccountOnchain struct {
	paths MerklePathSource
	tree  shielder.TreeConfig
}

// NewAccountOnchain reads paths from paths and the tree shape from tree.
func NewAccountOnchain(paths MerklePathSource, tree shielder.TreeConfig) *AccountOnchain {
	return &AccountOnchain{paths: paths, tree: tree}
}

// ValidateAccountState requires the current note at its leaf position in the tree.
func (a *AccountOnchain) ValidateAccountState(ctx context.Context, st *shielder.AccountState) error {
	if !st.HasNoteIndex() {
		return shielder.ErrNoNoteIndex
	}
	path, err := a.paths.GetMerklePath(ctx, st.CurrentNoteIndex)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch merkle path for index %s: %v",
			shielder.ErrAccountNotOnChain, st.CurrentNoteIndex, err)
	}
	arity, err := a.tree.Arity(ctx)
	if err != nil {
		return err
	}
	pos := new(big.Int).Mod(st.CurrentNoteIndex, big.NewInt(int64(arity))).Int64()
	if int64(len(path)) <= pos || path[pos].Cmp(st.CurrentNote.BigInt()) != 0 {
		return fmt.Errorf("%w: state with merkle index %s does not match on-chain data",
			shielder.ErrAccountNotOnChain, st.CurrentNoteIndex)
	}
	return nil
}

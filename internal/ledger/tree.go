// tree.go - Sparse arity-ary note tree with zero-filled empty subtrees.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"shielder/internal/shielder"
)

var errTreeFull = errors.New("note tree is full")

type noteTree struct {
	hasher shielder.Hasher
	height int
	arity  int
	leaves []shielder.Scalar
	// nodes[l] holds the non-empty nodes of level l; level 0 are leaves and level
	// height is the root.
	nodes []map[uint64]shielder.Scalar
	zeros []shielder.Scalar
}

func newNoteTree(ctx context.Context, h shielder.Hasher, height, arity int) (*noteTree, error) {
	if height <= 0 || arity < 2 {
		return nil, fmt.Errorf("invalid tree shape: height %d, arity %d", height, arity)
	}
	t := &noteTree{
		hasher: h,
		height: height,
		arity:  arity,
		nodes:  make([]map[uint64]shielder.Scalar, height+1),
		zeros:  make([]shielder.Scalar, height+1),
	}
	for l := range t.nodes {
		t.nodes[l] = make(map[uint64]shielder.Scalar)
	}
	for l := 1; l <= height; l++ {
		group := make([]shielder.Scalar, arity)
		for i := range group {
			group[i] = t.zeros[l-1]
		}
		z, err := h.Hash(ctx, group)
		if err != nil {
			return nil, err
		}
		t.zeros[l] = z
	}
	return t, nil
}

func (t *noteTree) capacity() uint64 {
	c := uint64(1)
	for i := 0; i < t.height; i++ {
		c *= uint64(t.arity)
	}
	return c
}

func (t *noteTree) node(level int, index uint64) shielder.Scalar {
	if n, ok := t.nodes[level][index]; ok {
		return n
	}
	return t.zeros[level]
}

// group returns the arity siblings at level that share a parent with index.
func (t *noteTree) group(level int, index uint64) []shielder.Scalar {
	a := uint64(t.arity)
	first := index / a * a
	out := make([]shielder.Scalar, t.arity)
	for i := range out {
		out[i] = t.node(level, first+uint64(i))
	}
	return out
}

func (t *noteTree) root() shielder.Scalar {
	return t.node(t.height, 0)
}

// insert appends leaf and returns its index. The tree is unchanged on error.
func (t *noteTree) insert(ctx context.Context, leaf shielder.Scalar) (uint64, error) {
	index := uint64(len(t.leaves))
	if index >= t.capacity() {
		return 0, errTreeFull
	}
	a := uint64(t.arity)
	updates := make([]shielder.Scalar, t.height+1)
	updates[0] = leaf
	idx := index
	for l := 0; l < t.height; l++ {
		g := t.group(l, idx)
		g[idx%a] = updates[l]
		parent, err := t.hasher.Hash(ctx, g)
		if err != nil {
			return 0, err
		}
		updates[l+1] = parent
		idx /= a
	}
	idx = index
	for l, u := range updates {
		t.nodes[l][idx] = u
		idx /= a
	}
	t.leaves = append(t.leaves, leaf)
	return index, nil
}

// path returns height groups of arity siblings from the leaf upwards, then the root.
func (t *noteTree) path(index uint64) ([]*big.Int, error) {
	if index >= uint64(len(t.leaves)) {
		return nil, fmt.Errorf("note index %d not in tree of %d leaves", index, len(t.leaves))
	}
	out := make([]*big.Int, 0, t.height*t.arity+1)
	idx := index
	for l := 0; l < t.height; l++ {
		for _, s := range t.group(l, idx) {
			out = append(out, s.BigInt())
		}
		idx /= uint64(t.arity)
	}
	return append(out, t.root().BigInt()), nil
}

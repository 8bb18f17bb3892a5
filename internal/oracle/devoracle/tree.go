// tree.go - Note tree shape and Merkle membership.

package devoracle

import (
	"context"
	"errors"
	"fmt"

	"shielder/internal/shielder"
)

const (
	DefaultHeight = 13
	DefaultArity  = 7
)

// TreeConfig is a fixed note tree shape.
type TreeConfig struct {
	height int
	arity  int
}

// NewTreeConfig returns a tree of the given height and arity.
func NewTreeConfig(height, arity int) *TreeConfig {
	return &TreeConfig{height: height, arity: arity}
}

func (t *TreeConfig) Height(context.Context) (int, error) { return t.height, nil }
func (t *TreeConfig) Arity(context.Context) (int, error)  { return t.arity, nil }

var errNotInPath = errors.New("note is not a member of the merkle path")

// merkleRoot checks that leaf sits in the first group of path and that every group
// hash sits in the group above it, then returns the hash of the top group.
// path holds height groups of arity siblings, without the root.
func merkleRoot(ctx context.Context, h shielder.Hasher, arity int, leaf shielder.Scalar, path []shielder.Scalar) (shielder.Scalar, error) {
	if arity <= 0 || len(path) == 0 || len(path)%arity != 0 {
		return shielder.Scalar{}, fmt.Errorf("malformed merkle path of length %d", len(path))
	}
	current := leaf
	for start := 0; start < len(path); start += arity {
		group := path[start : start+arity]
		if !contains(group, current) {
			return shielder.Scalar{}, fmt.Errorf("%w: level %d", errNotInPath, start/arity)
		}
		next, err := h.Hash(ctx, group)
		if err != nil {
			return shielder.Scalar{}, err
		}
		current = next
	}
	return current, nil
}

func contains(group []shielder.Scalar, s shielder.Scalar) bool {
	for _, g := range group {
		if g.Equal(s) {
			return true
		}
	}
	return false
}

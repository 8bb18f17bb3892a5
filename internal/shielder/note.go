// note.go - Note commitment formula shared by every action kind.

package shielder

import (
	"context"
	"fmt"
)

// HashNote computes H(noteVersion, id, nullifier, H(balance, token, 0...)), with the
// inner balance hash zero-padded to the hasher rate.
func HashNote(ctx context.Context, h Hasher, noteVersion, id, nullifier, balance, token Scalar) (Scalar, error) {
	rate, err := h.Rate(ctx)
	if err != nil {
		return Scalar{}, err
	}
	if rate < 2 {
		return Scalar{}, fmt.Errorf("hasher rate %d too small for a balance hash", rate)
	}
	inputs := make([]Scalar, rate)
	inputs[0] = balance
	inputs[1] = token
	hBalance, err := h.Hash(ctx, inputs)
	if err != nil {
		return Scalar{}, err
	}
	return h.Hash(ctx, []Scalar{noteVersion, id, nullifier, hBalance})
}

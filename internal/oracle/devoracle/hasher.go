// hasher.go - MiMC hashing of field elements.

package devoracle

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"shielder/internal/shielder"
)

// DefaultRate is the number of inputs accepted by one Hash call.
const DefaultRate = 7

// Hasher is a MiMC sponge over the bn254 scalar field.
type Hasher struct {
	rate int
}

// NewHasher accepts up to rate inputs per Hash call.
func NewHasher(rate int) *Hasher {
	return &Hasher{rate: rate}
}

// Hash absorbs 1..rate field elements.
func (h *Hasher) Hash(ctx context.Context, inputs []shielder.Scalar) (shielder.Scalar, error) {
	if err := ctx.Err(); err != nil {
		return shielder.Scalar{}, err
	}
	if len(inputs) == 0 || len(inputs) > h.rate {
		return shielder.Scalar{}, fmt.Errorf("hash takes 1 to %d inputs, got %d", h.rate, len(inputs))
	}
	return mimcHash(inputs)
}

func (h *Hasher) Rate(context.Context) (int, error) {
	return h.rate, nil
}

func mimcHash(inputs []shielder.Scalar) (shielder.Scalar, error) {
	m := mimc.NewMiMC()
	for _, in := range inputs {
		b := in.Bytes()
		if _, err := m.Write(b[:]); err != nil {
			return shielder.Scalar{}, err
		}
	}
	var e fr.Element
	e.SetBytes(m.Sum(nil))
	return shielder.ScalarFromElement(e), nil
}

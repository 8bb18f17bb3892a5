// scalar.go - Field elements of the proof system (bn254 scalar field).

package shielder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
)

// ErrScalarRange is returned when a value does not fit in the scalar field.
var ErrScalarRange = errors.New("value out of scalar field range")

// Scalar is an immutable element of the bn254 scalar field.
// The zero value is the field zero. Compare with Equal.
type Scalar struct {
	e fr.Element
}

// ScalarFromBigInt returns the scalar for v. v must be in [0, modulus).
func ScalarFromBigInt(v *big.Int) (Scalar, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(fr.Modulus()) >= 0 {
		return Scalar{}, fmt.Errorf("%w: %v", ErrScalarRange, v)
	}
	var s Scalar
	s.e.SetBigInt(v)
	return s, nil
}

// MustScalarFromBigInt is like ScalarFromBigInt but panics on out-of-range input.
func MustScalarFromBigInt(v *big.Int) Scalar {
	s, err := ScalarFromBigInt(v)
	if err != nil {
		panic(err)
	}
	return s
}

// ScalarFromUint64 returns the scalar for v.
func ScalarFromUint64(v uint64) Scalar {
	var s Scalar
	s.e.SetUint64(v)
	return s
}

// ScalarFromBytes reads a canonical 32-byte big-endian encoding.
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != fr.Bytes {
		return Scalar{}, fmt.Errorf("scalar must be %d bytes, got %d", fr.Bytes, len(b))
	}
	var s Scalar
	if err := s.e.SetBytesCanonical(b); err != nil {
		return Scalar{}, fmt.Errorf("%w: %v", ErrScalarRange, err)
	}
	return s, nil
}

// ScalarFromAddress interprets a 20-byte address as an integer.
func ScalarFromAddress(a common.Address) Scalar {
	var s Scalar
	s.e.SetBytes(a.Bytes())
	return s
}

// ScalarFromElement wraps a field element.
func ScalarFromElement(e fr.Element) Scalar {
	return Scalar{e: e}
}

// ParseScalar parses a decimal string.
func ParseScalar(str string) (Scalar, error) {
	v, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return Scalar{}, fmt.Errorf("invalid scalar %q", str)
	}
	return ScalarFromBigInt(v)
}

// Element returns a copy of the underlying field element.
func (s Scalar) Element() fr.Element {
	return s.e
}

func (s Scalar) BigInt() *big.Int {
	return s.e.BigInt(new(big.Int))
}

// Bytes returns the canonical 32-byte big-endian encoding.
func (s Scalar) Bytes() [32]byte {
	return s.e.Bytes()
}

func (s Scalar) Equal(o Scalar) bool {
	return s.e.Equal(&o.e)
}

func (s Scalar) IsZero() bool {
	return s.e.IsZero()
}

// String returns the decimal form.
func (s Scalar) String() string {
	return s.BigInt().String()
}

func (s Scalar) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scalar) UnmarshalText(text []byte) error {
	v, err := ParseScalar(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// secrets.go - Keccak-based secret and id derivation.

package devoracle

import (
	"context"
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"shielder/internal/shielder"
)

const (
	nullifierLabel = "nullifier"
	trapdoorLabel  = "trapdoor"
	idLabel        = "id"
)

// SecretManager derives per-nonce secrets and per-token ids.
type SecretManager struct{}

func (SecretManager) DeriveSecrets(ctx context.Context, id shielder.Scalar, nonce uint64) (shielder.Secrets, error) {
	if err := ctx.Err(); err != nil {
		return shielder.Secrets{}, err
	}
	idBytes := id.Bytes()
	var nonceBytes [4]byte
	binary.BigEndian.PutUint32(nonceBytes[:], uint32(nonce))
	return shielder.Secrets{
		Nullifier: reduce(crypto.Keccak256(idBytes[:], []byte(nullifierLabel), nonceBytes[:])),
		Trapdoor:  reduce(crypto.Keccak256(idBytes[:], []byte(trapdoorLabel), nonceBytes[:])),
	}, nil
}

func (SecretManager) DeriveID(ctx context.Context, seed []byte, chainID uint64, token common.Address) (shielder.Scalar, error) {
	if err := ctx.Err(); err != nil {
		return shielder.Scalar{}, err
	}
	var chainBytes [8]byte
	binary.BigEndian.PutUint64(chainBytes[:], chainID)
	return reduce(crypto.Keccak256(seed, []byte(idLabel), chainBytes[:], token.Bytes())), nil
}

func reduce(digest []byte) shielder.Scalar {
	var e fr.Element
	e.SetBytes(digest)
	return shielder.ScalarFromElement(e)
}

package shielder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// WithdrawCommitment binds a withdrawal's recipient, relayer and fee to its proof:
// keccak256(bytes3 version, uint256 recipient, uint256 relayer, uint256 fee) >> 4.
// The shift keeps the value inside the scalar field.
func WithdrawCommitment(version ProtocolVersion, recipient, relayer common.Address, fee *big.Int) Scalar {
	digest := crypto.Keccak256(
		version[:],
		common.LeftPadBytes(recipient.Bytes(), 32),
		common.LeftPadBytes(relayer.Bytes(), 32),
		math.U256Bytes(new(big.Int).Set(fee)),
	)
	v := new(big.Int).SetBytes(digest)
	v.Rsh(v, 4)
	return MustScalarFromBigInt(v)
}

// fees.go - Protocol fee arithmetic in basis points.

package shielder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxBps is 100% in basis points.
const MaxBps = 10_000

var ErrFeeOverflow = errors.New("protocol fee computation overflows uint256")

// ProtocolFees is an amount together with the protocol fee it carries.
type ProtocolFees struct {
	Amount      *big.Int
	ProtocolFee *big.Int
}

// ProtocolFeeFromGross computes the fee already included in amount:
// ceil(amount * bps / MaxBps). Amount is returned unchanged.
func ProtocolFeeFromGross(amount, bps *big.Int) (ProtocolFees, error) {
	a, b, err := feeOperands(amount, bps)
	if err != nil {
		return ProtocolFees{}, err
	}
	fee, err := ceilMulDiv(a, b, uint256.NewInt(MaxBps))
	if err != nil {
		return ProtocolFees{}, err
	}
	return ProtocolFees{Amount: new(big.Int).Set(amount), ProtocolFee: fee.ToBig()}, nil
}

// ProtocolFeeFromNet grosses amount up so that, after the fee is taken, amount remains:
// fee = ceil(amount * bps / (MaxBps - bps)).
func ProtocolFeeFromNet(amount, bps *big.Int) (ProtocolFees, error) {
	a, b, err := feeOperands(amount, bps)
	if err != nil {
		return ProtocolFees{}, err
	}
	if b.Uint64() == MaxBps {
		return ProtocolFees{}, fmt.Errorf("protocol fee of %d bps leaves nothing to deposit", MaxBps)
	}
	denom := new(uint256.Int).Sub(uint256.NewInt(MaxBps), b)
	fee, err := ceilMulDiv(a, b, denom)
	if err != nil {
		return ProtocolFees{}, err
	}
	gross, overflow := new(uint256.Int).AddOverflow(a, fee)
	if overflow {
		return ProtocolFees{}, ErrFeeOverflow
	}
	return ProtocolFees{Amount: gross.ToBig(), ProtocolFee: fee.ToBig()}, nil
}

func feeOperands(amount, bps *big.Int) (*uint256.Int, *uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative amount", ErrValidation)
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, nil, ErrFeeOverflow
	}
	if bps == nil || bps.Sign() < 0 || bps.Cmp(big.NewInt(MaxBps)) > 0 {
		return nil, nil, fmt.Errorf("protocol fee bps %v out of range", bps)
	}
	b, _ := uint256.FromBig(bps)
	return a, b, nil
}

// ceilMulDiv returns ceil(x*y/d).
func ceilMulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	num, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrFeeOverflow
	}
	num, overflow = num.AddOverflow(num, new(uint256.Int).SubUint64(d, 1))
	if overflow {
		return nil, ErrFeeOverflow
	}
	return num.Div(num, d), nil
}

package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/chain"
	"shielder/internal/shielder"
)

// Relayer submits withdrawals to a local Ledger from its own address, charging a
// fixed fee.
type Relayer struct {
	ledger  *Ledger
	address common.Address
	fee     *big.Int
}

var _ shielder.Relayer = (*Relayer)(nil)

// NewRelayer relays to l and charges fee to address.
func NewRelayer(l *Ledger, address common.Address, fee *big.Int) *Relayer {
	return &Relayer{ledger: l, address: address, fee: new(big.Int).Set(fee)}
}

func (r *Relayer) Address(context.Context) (common.Address, error) {
	return r.address, nil
}

func (r *Relayer) QuoteFees(context.Context) (shielder.QuotedFees, error) {
	return shielder.QuotedFees{
		BaseFee:  new(big.Int).Set(r.fee),
		RelayFee: new(big.Int),
		TotalFee: new(big.Int).Set(r.fee),
	}, nil
}

func (r *Relayer) Withdraw(ctx context.Context, call shielder.WithdrawCall) (shielder.RelayResponse, error) {
	if v := r.ledger.Version(); call.Version != v {
		return shielder.RelayResponse{}, &shielder.VersionRejectedByRelayerError{
			Message: fmt.Sprintf("Version mismatch: relayer %s, client %s", v.Hex(), call.Version.Hex()),
		}
	}
	if call.RelayerAddress != r.address {
		return shielder.RelayResponse{}, fmt.Errorf("withdrawal names relayer %s, this relayer is %s", call.RelayerAddress.Hex(), r.address.Hex())
	}
	call.From = r.address
	data, err := chain.PackWithdraw(call)
	if err != nil {
		return shielder.RelayResponse{}, err
	}
	hash, err := r.ledger.Send(ctx, shielder.TxRequest{From: r.address, To: r.ledger.Address(), Data: data, Value: new(big.Int)})
	if err != nil {
		return shielder.RelayResponse{}, err
	}
	receipt, err := r.ledger.WaitForReceipt(ctx, hash)
	if err != nil {
		return shielder.RelayResponse{}, err
	}
	return shielder.RelayResponse{TxHash: hash, BlockHash: receipt.BlockHash}, nil
}

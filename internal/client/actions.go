// actions.go - Shield and withdraw operations.

package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"shielder/internal/chainsync"
	"shielder/internal/shielder"
	"shielder/internal/state"
	"shielder/internal/transactions/deposit"
	"shielder/internal/transactions/newaccount"
	"shielder/internal/transactions/withdraw"
)

// Actions runs one operation end to end: generate verified calldata, submit it, wait
// for finality and sync the account. Every returned error has been reported to the
// observer and normalized.
type Actions struct {
	registry   *state.Registry
	sync       *chainsync.Synchronizer
	ledger     shielder.Ledger
	relayer    shielder.Relayer
	receipts   shielder.ReceiptWaiter
	onchain    *state.AccountOnchain
	newAccount *newaccount.Action
	deposit    *deposit.Action
	withdraw   *withdraw.Action
	version    shielder.ProtocolVersion
	observer   Observer
	log        zerolog.Logger
}

// WithdrawFees asks the relay for its current fees.
func (a *Actions) WithdrawFees(ctx context.Context) (shielder.QuotedFees, error) {
	fees, err := a.relayer.QuoteFees(ctx)
	if err != nil {
		return shielder.QuotedFees{}, shielder.NormalizeError(&shielder.TransportError{Op: "quote fees", Err: err})
	}
	return fees, nil
}

// Shield moves amount of token into the account, creating it on first use. The
// protocol fee is taken out of amount.
func (a *Actions) Shield(ctx context.Context, token shielder.Token, amount *big.Int, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	return a.run(ctx, OpShield, token, func() (common.Hash, error) {
		st, err := a.registry.GetAccountState(ctx, token)
		if err != nil {
			return common.Hash{}, a.fail(err, StageGeneration, OpShield)
		}
		fees, err := a.protocolFee(ctx, amount, a.ledger.DepositFeeBps)
		if err != nil {
			return common.Hash{}, a.fail(err, StageGeneration, OpShield)
		}
		if st.Nonce == 0 {
			return a.newAccountTx(ctx, st, amount, fees.ProtocolFee, send, from)
		}
		return a.depositTx(ctx, st, amount, fees.ProtocolFee, send, from)
	})
}

// Withdraw sends amount, which includes totalFee, to recipient through the relay.
func (a *Actions) Withdraw(ctx context.Context, token shielder.Token, amount, totalFee *big.Int, recipient common.Address) (common.Hash, error) {
	return a.run(ctx, OpWithdraw, token, func() (common.Hash, error) {
		relayerAddress, err := a.relayer.Address(ctx)
		if err != nil {
			return common.Hash{}, a.fail(&shielder.TransportError{Op: "fetch relayer address", Err: err}, StageGeneration, OpWithdraw)
		}
		cd, err := a.withdrawCalldata(ctx, token, withdraw.Request{
			Amount:         amount,
			Recipient:      recipient,
			RelayerAddress: relayerAddress,
			TotalFee:       totalFee,
		})
		if err != nil {
			return common.Hash{}, err
		}
		return a.sent(OpWithdraw, func() (common.Hash, error) {
			return a.withdraw.SendCalldataWithRelayer(ctx, cd)
		})
	})
}

// WithdrawManual submits the withdrawal from the caller's own address with no relay
// fee. The withdrawal is linkable to from.
func (a *Actions) WithdrawManual(ctx context.Context, token shielder.Token, amount *big.Int, recipient common.Address, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	return a.run(ctx, OpWithdraw, token, func() (common.Hash, error) {
		cd, err := a.withdrawCalldata(ctx, token, withdraw.Request{
			Amount:         amount,
			Recipient:      recipient,
			RelayerAddress: from,
			TotalFee:       new(big.Int),
		})
		if err != nil {
			return common.Hash{}, err
		}
		return a.sent(OpWithdraw, func() (common.Hash, error) {
			return a.withdraw.SendCalldata(ctx, cd, send, from)
		})
	})
}

// run submits through submit and, once the transaction is final, syncs token. The
// hash is returned with a finality or sync error since the transaction was sent.
func (a *Actions) run(ctx context.Context, op Operation, token shielder.Token, submit func() (common.Hash, error)) (common.Hash, error) {
	hash, err := submit()
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.waitAndSync(ctx, token, hash); err != nil {
		return hash, a.fail(err, StageSyncing, op)
	}
	return hash, nil
}

func (a *Actions) newAccountTx(ctx context.Context, st *shielder.AccountState, amount, fee *big.Int, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	cd, err := a.newAccount.GenerateCalldata(ctx, st, amount, fee, a.version, from, nil)
	if err != nil {
		return common.Hash{}, a.fail(err, StageGeneration, OpShield)
	}
	a.observer.CalldataGenerated(OpShield, GeneratedCalldata{
		Kind:        shielder.EventNewAccount,
		Token:       cd.Token,
		Amount:      cd.Amount,
		ProtocolFee: cd.ProtocolFee,
		ProvingTime: cd.ProvingTime,
		Payload:     cd,
	})
	return a.sent(OpShield, func() (common.Hash, error) {
		return a.newAccount.SendCalldata(ctx, cd, send, from)
	})
}

func (a *Actions) depositTx(ctx context.Context, st *shielder.AccountState, amount, fee *big.Int, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	if err := a.onchain.ValidateAccountState(ctx, st); err != nil {
		return common.Hash{}, a.fail(err, StageGeneration, OpShield)
	}
	cd, err := a.deposit.GenerateCalldata(ctx, st, amount, fee, a.version, from, nil)
	if err != nil {
		return common.Hash{}, a.fail(err, StageGeneration, OpShield)
	}
	a.observer.CalldataGenerated(OpShield, GeneratedCalldata{
		Kind:        shielder.EventDeposit,
		Token:       cd.Token,
		Amount:      cd.Amount,
		ProtocolFee: cd.ProtocolFee,
		ProvingTime: cd.ProvingTime,
		Payload:     cd,
	})
	return a.sent(OpShield, func() (common.Hash, error) {
		return a.deposit.SendCalldata(ctx, cd, send, from)
	})
}

// withdrawCalldata fills in the version and protocol fee of req and reports the
// generated calldata.
func (a *Actions) withdrawCalldata(ctx context.Context, token shielder.Token, req withdraw.Request) (*withdraw.Calldata, error) {
	st, err := a.registry.GetAccountState(ctx, token)
	if err != nil {
		return nil, a.fail(err, StageGeneration, OpWithdraw)
	}
	if err := a.onchain.ValidateAccountState(ctx, st); err != nil {
		return nil, a.fail(err, StageGeneration, OpWithdraw)
	}
	fees, err := a.protocolFee(ctx, req.Amount, a.ledger.WithdrawFeeBps)
	if err != nil {
		return nil, a.fail(err, StageGeneration, OpWithdraw)
	}
	req.ProtocolFee = fees.ProtocolFee
	req.ExpectedVersion = a.version
	cd, err := a.withdraw.GenerateCalldata(ctx, st, req)
	if err != nil {
		return nil, a.fail(err, StageGeneration, OpWithdraw)
	}
	a.observer.CalldataGenerated(OpWithdraw, GeneratedCalldata{
		Kind:        shielder.EventWithdraw,
		Token:       cd.Token,
		Amount:      cd.Amount,
		ProtocolFee: cd.ProtocolFee,
		ProvingTime: cd.ProvingTime,
		Payload:     cd,
	})
	return cd, nil
}

func (a *Actions) sent(op Operation, send func() (common.Hash, error)) (common.Hash, error) {
	hash, err := send()
	if err != nil {
		return common.Hash{}, a.fail(err, StageSending, op)
	}
	a.observer.CalldataSent(op, hash)
	return hash, nil
}

func (a *Actions) protocolFee(ctx context.Context, amount *big.Int, bps func(context.Context) (*big.Int, error)) (shielder.ProtocolFees, error) {
	if amount == nil || amount.Sign() <= 0 {
		return shielder.ProtocolFees{}, fmt.Errorf("%w: amount must be positive", shielder.ErrValidation)
	}
	b, err := bps(ctx)
	if err != nil {
		return shielder.ProtocolFees{}, &shielder.TransportError{Op: "fetch protocol fee", Err: err}
	}
	return shielder.ProtocolFeeFromGross(amount, b)
}

func (a *Actions) waitAndSync(ctx context.Context, token shielder.Token, hash common.Hash) error {
	receipt, err := a.receipts.WaitForReceipt(ctx, hash)
	if err != nil {
		return &shielder.TransportError{Op: "wait for receipt", Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", shielder.ErrTransactionFailed, hash.Hex())
	}
	return a.sync.SyncSingleAccount(ctx, token, a.observer.NewTransaction)
}

// fail normalizes err and reports it.
func (a *Actions) fail(err error, stage Stage, op Operation) error {
	err = shielder.NormalizeError(err)
	a.log.Error().Err(err).Str("stage", string(stage)).Str("operation", string(op)).Msg("operation failed")
	a.observer.Error(err, stage, op)
	return err
}

// execute.go - Contract rules for the three shielder calls.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/shielder"
)

var (
	errZeroAmount          = errors.New("zero amount")
	errWrongProtocolFee    = errors.New("wrong protocol fee")
	errFeeHigherThanAmount = errors.New("relayer fee higher than amount")
	errDuplicatedNullifier = errors.New("duplicated nullifier")
	errUnknownMerkleRoot   = errors.New("merkle root does not exist")
	errVerificationFailed  = errors.New("proof verification failed")
)

// execute applies call; on error the ledger state is untouched.
func (l *Ledger) execute(ctx context.Context, call any, block uint64, tx common.Hash) ([]shielder.ProtocolEvent, error) {
	switch c := call.(type) {
	case shielder.NewAccountCall:
		return l.newAccount(ctx, c, block, tx)
	case shielder.DepositCall:
		return l.deposit(ctx, c, block, tx)
	case shielder.WithdrawCall:
		return l.withdraw(ctx, c, block, tx)
	default:
		return nil, fmt.Errorf("unsupported call %T", call)
	}
}

func (l *Ledger) checkFee(amount, paid, bps *big.Int) error {
	if amount.Sign() <= 0 {
		return errZeroAmount
	}
	want, err := shielder.ProtocolFeeFromGross(amount, bps)
	if err != nil {
		return err
	}
	if paid == nil || paid.Cmp(want.ProtocolFee) != 0 {
		return fmt.Errorf("%w: paid %v, expected %s", errWrongProtocolFee, paid, want.ProtocolFee)
	}
	return nil
}

func (l *Ledger) checkSpend(root, nullifierHash shielder.Scalar) error {
	if _, ok := l.roots[root.String()]; !ok {
		return errUnknownMerkleRoot
	}
	if _, spent := l.nullifiers[nullifierHash.String()]; spent {
		return errDuplicatedNullifier
	}
	return nil
}

// appendNote inserts the note and records the revealed nullifier hash.
func (l *Ledger) appendNote(ctx context.Context, note, nullifierHash shielder.Scalar, block uint64) (*big.Int, error) {
	index, err := l.tree.insert(ctx, note)
	if err != nil {
		return nil, err
	}
	l.roots[l.tree.root().String()] = struct{}{}
	l.nullifiers[nullifierHash.String()] = block
	return new(big.Int).SetUint64(index), nil
}

func (l *Ledger) newAccount(ctx context.Context, c shielder.NewAccountCall, block uint64, tx common.Hash) ([]shielder.ProtocolEvent, error) {
	if err := l.checkVersion(c.Version); err != nil {
		return nil, err
	}
	if err := l.checkFee(c.Amount, c.ProtocolFee, l.depositFeeBps); err != nil {
		return nil, err
	}
	if _, used := l.nullifiers[c.Prenullifier.String()]; used {
		return nil, errDuplicatedNullifier
	}
	amount, fee, err := scalars(c.Amount, c.ProtocolFee)
	if err != nil {
		return nil, err
	}
	pub := shielder.NewAccountPublicInputs{
		HNote:          c.NewNote,
		Prenullifier:   c.Prenullifier,
		InitialDeposit: amount,
		CallerAddress:  shielder.ScalarFromAddress(c.From),
		TokenAddress:   c.Token.Field(),
		ProtocolFee:    fee,
	}
	if ok, err := l.crypto.NewAccount.Verify(ctx, c.Proof, pub); err != nil || !ok {
		return nil, verifyErr(err)
	}
	index, err := l.appendNote(ctx, c.NewNote, c.Prenullifier, block)
	if err != nil {
		return nil, err
	}
	return []shielder.ProtocolEvent{{
		Kind:         shielder.EventNewAccount,
		Version:      l.version,
		Amount:       new(big.Int).Set(c.Amount),
		ProtocolFee:  new(big.Int).Set(c.ProtocolFee),
		NewNote:      c.NewNote,
		NewNoteIndex: index,
		TxHash:       tx,
		Block:        block,
		TokenAddress: c.Token.Address(),
		Prenullifier: c.Prenullifier,
		Memo:         c.Memo,
	}}, nil
}

func (l *Ledger) deposit(ctx context.Context, c shielder.DepositCall, block uint64, tx common.Hash) ([]shielder.ProtocolEvent, error) {
	if err := l.checkVersion(c.Version); err != nil {
		return nil, err
	}
	if err := l.checkFee(c.Amount, c.ProtocolFee, l.depositFeeBps); err != nil {
		return nil, err
	}
	if err := l.checkSpend(c.MerkleRoot, c.OldNullifierHash); err != nil {
		return nil, err
	}
	amount, fee, err := scalars(c.Amount, c.ProtocolFee)
	if err != nil {
		return nil, err
	}
	pub := shielder.DepositPublicInputs{
		MerkleRoot:    c.MerkleRoot,
		HNullifierOld: c.OldNullifierHash,
		HNoteNew:      c.NewNote,
		Value:         amount,
		CallerAddress: shielder.ScalarFromAddress(c.From),
		TokenAddress:  c.Token.Field(),
		ProtocolFee:   fee,
	}
	if ok, err := l.crypto.Deposit.Verify(ctx, c.Proof, pub); err != nil || !ok {
		return nil, verifyErr(err)
	}
	index, err := l.appendNote(ctx, c.NewNote, c.OldNullifierHash, block)
	if err != nil {
		return nil, err
	}
	return []shielder.ProtocolEvent{{
		Kind:         shielder.EventDeposit,
		Version:      l.version,
		Amount:       new(big.Int).Set(c.Amount),
		ProtocolFee:  new(big.Int).Set(c.ProtocolFee),
		NewNote:      c.NewNote,
		NewNoteIndex: index,
		TxHash:       tx,
		Block:        block,
		TokenAddress: c.Token.Address(),
		Memo:         c.Memo,
	}}, nil
}

func (l *Ledger) withdraw(ctx context.Context, c shielder.WithdrawCall, block uint64, tx common.Hash) ([]shielder.ProtocolEvent, error) {
	if err := l.checkVersion(c.Version); err != nil {
		return nil, err
	}
	if err := l.checkFee(c.Amount, c.ProtocolFee, l.withdrawFeeBps); err != nil {
		return nil, err
	}
	if c.RelayerFee == nil || c.RelayerFee.Cmp(c.Amount) > 0 {
		return nil, errFeeHigherThanAmount
	}
	if err := l.checkSpend(c.MerkleRoot, c.OldNullifierHash); err != nil {
		return nil, err
	}
	amount, fee, err := scalars(c.Amount, c.ProtocolFee)
	if err != nil {
		return nil, err
	}
	pub := shielder.WithdrawPublicInputs{
		MerkleRoot:    c.MerkleRoot,
		HNullifierOld: c.OldNullifierHash,
		HNoteNew:      c.NewNote,
		Value:         amount,
		TokenAddress:  c.Token.Field(),
		Commitment:    shielder.WithdrawCommitment(c.Version, c.Recipient, c.RelayerAddress, c.RelayerFee),
		ProtocolFee:   fee,
	}
	if ok, err := l.crypto.Withdraw.Verify(ctx, c.Proof, pub); err != nil || !ok {
		return nil, verifyErr(err)
	}
	index, err := l.appendNote(ctx, c.NewNote, c.OldNullifierHash, block)
	if err != nil {
		return nil, err
	}
	recipient, relayer := c.Recipient, c.RelayerAddress
	return []shielder.ProtocolEvent{{
		Kind:           shielder.EventWithdraw,
		Version:        l.version,
		Amount:         new(big.Int).Set(c.Amount),
		ProtocolFee:    new(big.Int).Set(c.ProtocolFee),
		NewNote:        c.NewNote,
		NewNoteIndex:   index,
		TxHash:         tx,
		Block:          block,
		TokenAddress:   c.Token.Address(),
		Recipient:      &recipient,
		RelayerAddress: &relayer,
		RelayerFee:     new(big.Int).Set(c.RelayerFee),
		Memo:           c.Memo,
	}}, nil
}

func verifyErr(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", errVerificationFailed, err)
	}
	return errVerificationFailed
}

func scalars(amount, fee *big.Int) (shielder.Scalar, shielder.Scalar, error) {
	a, err := shielder.ScalarFromBigInt(amount)
	if err != nil {
		return shielder.Scalar{}, shielder.Scalar{}, err
	}
	f, err := shielder.ScalarFromBigInt(fee)
	if err != nil {
		return shielder.Scalar{}, shielder.Scalar{}, err
	}
	return a, f, nil
}

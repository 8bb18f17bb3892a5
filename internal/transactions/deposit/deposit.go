// Package deposit adds funds to an existing account.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"shielder/internal/shielder"
	"shielder/internal/transactions/note"
)

// Calldata is a proven deposit ready to submit.
type Calldata struct {
	ExpectedVersion shielder.ProtocolVersion
	PublicInputs    shielder.DepositPublicInputs
	Proof           []byte
	ProvingTime     time.Duration
	Amount          *big.Int
	ProtocolFee     *big.Int
	Token           shielder.Token
	Memo            []byte
}

// Action adds funds to an existing account.
type Action struct {
	*note.Action
	ledger shielder.Ledger
	log    zerolog.Logger
}

// New submits through ledger.
func New(ledger shielder.Ledger, crypto *shielder.CryptoClient, logger zerolog.Logger) *Action {
	return &Action{
		Action: note.NewAction(crypto),
		ledger: ledger,
		log:    logger.With().Str("component", "deposit").Logger(),
	}
}

// RawTransition adds amount to the balance.
func (a *Action) RawTransition(ctx context.Context, st *shielder.AccountState, amount *big.Int) (*shielder.AccountState, error) {
	return a.RawAction(ctx, st, amount, func(current, amount *big.Int) *big.Int {
		return current.Add(current, amount)
	})
}

// PreparePublicInputs recomputes the new note and binds it to the old nullifier and
// the tree root.
func (a *Action) PreparePublicInputs(ctx context.Context, st *shielder.AccountState, amount, protocolFee *big.Int,
	caller common.Address, nullifierOld, merkleRoot shielder.Scalar) (shielder.DepositPublicInputs, error) {
	next, err := a.RawTransition(ctx, st, new(big.Int).Sub(amount, protocolFee))
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	if next == nil {
		return shielder.DepositPublicInputs{}, fmt.Errorf("failed to deposit: %w", shielder.ErrNegativeBalance)
	}
	hNullifierOld, err := shielder.HashNullifier(ctx, a.Crypto.Hasher, nullifierOld)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	value, err := note.AmountScalar("amount", amount)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	return shielder.DepositPublicInputs{
		MerkleRoot:    merkleRoot,
		HNullifierOld: hNullifierOld,
		HNoteNew:      next.CurrentNote,
		Value:         value,
		CallerAddress: shielder.ScalarFromAddress(caller),
		TokenAddress:  st.Token.Field(),
		ProtocolFee:   fee,
	}, nil
}

// GenerateCalldata proves and verifies a deposit of amount, of which protocolFee goes
// to the protocol.
func (a *Action) GenerateCalldata(ctx context.Context, st *shielder.AccountState, amount, protocolFee *big.Int,
	expectedVersion shielder.ProtocolVersion, caller common.Address, memo []byte) (*Calldata, error) {
	if !st.HasNoteIndex() || st.Nonce == 0 {
		return nil, shielder.ErrNoNoteIndex
	}
	if protocolFee.Cmp(amount) > 0 {
		return nil, fmt.Errorf("%w: protocol fee %s, amount %s", shielder.ErrFeeExceedsAmount, protocolFee, amount)
	}
	start := time.Now()

	rawPath, err := a.ledger.GetMerklePath(ctx, st.CurrentNoteIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch merkle path: %w", err)
	}
	path, root, err := a.MerklePathAndRoot(ctx, rawPath)
	if err != nil {
		return nil, err
	}
	oldSecrets, newSecrets, err := a.OldAndNewSecrets(ctx, st)
	if err != nil {
		return nil, err
	}
	balanceOld, err := note.AmountScalar("balance", st.Balance)
	if err != nil {
		return nil, err
	}
	value, err := note.AmountScalar("amount", amount)
	if err != nil {
		return nil, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee)
	if err != nil {
		return nil, err
	}
	advice := shielder.DepositAdvice{
		NoteVersion:   shielder.CurrentVersion.NoteVersion(),
		ID:            st.ID,
		NullifierOld:  oldSecrets.Nullifier,
		BalanceOld:    balanceOld,
		TokenAddress:  st.Token.Field(),
		Path:          path,
		Value:         value,
		CallerAddress: shielder.ScalarFromAddress(caller),
		NullifierNew:  newSecrets.Nullifier,
		ProtocolFee:   fee,
	}

	proof, err := a.Crypto.Deposit.Prove(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "deposit", Err: err}
	}
	pub, err := a.PreparePublicInputs(ctx, st, amount, protocolFee, caller, oldSecrets.Nullifier, root)
	if err != nil {
		return nil, err
	}
	oraclePub, err := a.Crypto.Deposit.PublicInputs(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "deposit", Err: err}
	}
	if !oraclePub.HNoteNew.Equal(pub.HNoteNew) {
		return nil, &shielder.ProofError{Action: "deposit", Err: errors.New("oracle note differs from local transition")}
	}
	ok, err := a.Crypto.Deposit.Verify(ctx, proof, pub)
	if err != nil {
		return nil, &shielder.ProofError{Action: "deposit", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("deposit: %w", shielder.ErrVerificationFailed)
	}

	elapsed := time.Since(start)
	a.log.Debug().Dur("proving_time", elapsed).Uint64("nonce", st.Nonce).Msg("generated deposit calldata")
	return &Calldata{
		ExpectedVersion: expectedVersion,
		PublicInputs:    pub,
		Proof:           proof,
		ProvingTime:     elapsed,
		Amount:          new(big.Int).Set(amount),
		ProtocolFee:     new(big.Int).Set(protocolFee),
		Token:           st.Token,
		Memo:            memo,
	}, nil
}

func (a *Action) SendCalldata(ctx context.Context, cd *Calldata, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	data, err := a.ledger.DepositCalldata(ctx, shielder.DepositCall{
		Version:          cd.ExpectedVersion,
		From:             from,
		Token:            cd.Token,
		Amount:           cd.Amount,
		OldNullifierHash: cd.PublicInputs.HNullifierOld,
		NewNote:          cd.PublicInputs.HNoteNew,
		MerkleRoot:       cd.PublicInputs.MerkleRoot,
		ProtocolFee:      cd.ProtocolFee,
		Memo:             cd.Memo,
		Proof:            cd.Proof,
	})
	if err != nil {
		return common.Hash{}, note.WrapSendError("deposit", err)
	}
	hash, err := send(ctx, shielder.TxRequest{
		From:  from,
		To:    a.ledger.Address(),
		Data:  data,
		Value: note.NativeValue(cd.Token, cd.Amount),
	})
	if err != nil {
		return common.Hash{}, note.WrapSendError("deposit", err)
	}
	a.log.Info().Str("tx", hash.Hex()).Msg("sent deposit transaction")
	return hash, nil
}

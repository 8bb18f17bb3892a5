// Package newaccount creates the first note of an account.
package newaccount

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

// Calldata is a verified new-account proof ready for submission.
type Calldata struct {
	ExpectedVersion shielder.ProtocolVersion
	PublicInputs    shielder.NewAccountPublicInputs
	Proof           []byte
	ProvingTime     time.Duration
	Amount          *big.Int
	ProtocolFee     *big.Int
	Token           shielder.Token
	Memo            []byte
}

// Action opens an account with its first deposit.
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
		log:    logger.With().Str("component", "new_account").Logger(),
	}
}

// RawTransition sets the balance to amount.
func (a *Action) RawTransition(ctx context.Context, st *shielder.AccountState, amount *big.Int) (*shielder.AccountState, error) {
	return a.RawAction(ctx, st, amount, func(_, amount *big.Int) *big.Int {
		return new(big.Int).Set(amount)
	})
}

// PreparePublicInputs recomputes the note the proof must commit to.
func (a *Action) PreparePublicInputs(ctx context.Context, st *shielder.AccountState, amount, protocolFee *big.Int, caller common.Address) (shielder.NewAccountPublicInputs, error) {
	next, err := a.RawTransition(ctx, st, new(big.Int).Sub(amount, protocolFee))
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	if next == nil {
		return shielder.NewAccountPublicInputs{}, fmt.Errorf("failed to create new account: %w", shielder.ErrNegativeBalance)
	}
	prenullifier, err := shielder.HashNullifier(ctx, a.Crypto.Hasher, st.ID)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	deposit, err := note.AmountScalar("amount", amount)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	return shielder.NewAccountPublicInputs{
		HNote:          next.CurrentNote,
		Prenullifier:   prenullifier,
		InitialDeposit: deposit,
		CallerAddress:  shielder.ScalarFromAddress(caller),
		TokenAddress:   st.Token.Field(),
		ProtocolFee:    fee,
	}, nil
}

func (a *Action) prepareAdvice(ctx context.Context, st *shielder.AccountState, amount, protocolFee *big.Int, caller common.Address) (shielder.NewAccountAdvice, error) {
	secrets, err := a.Crypto.Secrets.DeriveSecrets(ctx, st.ID, 0)
	if err != nil {
		return shielder.NewAccountAdvice{}, fmt.Errorf("failed to derive secrets: %w", err)
	}
	deposit, err := note.AmountScalar("amount", amount)
	if err != nil {
		return shielder.NewAccountAdvice{}, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee)
	if err != nil {
		return shielder.NewAccountAdvice{}, err
	}
	return shielder.NewAccountAdvice{
		NoteVersion:    shielder.CurrentVersion.NoteVersion(),
		ID:             st.ID,
		Nullifier:      secrets.Nullifier,
		TokenAddress:   st.Token.Field(),
		InitialDeposit: deposit,
		CallerAddress:  shielder.ScalarFromAddress(caller),
		ProtocolFee:    fee,
	}, nil
}

// GenerateCalldata proves and verifies a new account holding amount minus the
// protocol fee. Calldata is never returned unverified.
func (a *Action) GenerateCalldata(ctx context.Context, st *shielder.AccountState, amount, protocolFee *big.Int,
	expectedVersion shielder.ProtocolVersion, caller common.Address, memo []byte) (*Calldata, error) {
	if st.Nonce != 0 {
		return nil, fmt.Errorf("%w: account already exists", shielder.ErrValidation)
	}
	if protocolFee.Cmp(amount) > 0 {
		return nil, fmt.Errorf("%w: protocol fee %s, amount %s", shielder.ErrFeeExceedsAmount, protocolFee, amount)
	}
	start := time.Now()

	advice, err := a.prepareAdvice(ctx, st, amount, protocolFee, caller)
	if err != nil {
		return nil, err
	}
	proof, err := a.Crypto.NewAccount.Prove(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "new account", Err: err}
	}
	pub, err := a.PreparePublicInputs(ctx, st, amount, protocolFee, caller)
	if err != nil {
		return nil, err
	}
	oraclePub, err := a.Crypto.NewAccount.PublicInputs(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "new account", Err: err}
	}
	if !oraclePub.HNote.Equal(pub.HNote) {
		return nil, &shielder.ProofError{Action: "new account", Err: errors.New("oracle note differs from local transition")}
	}
	ok, err := a.Crypto.NewAccount.Verify(ctx, proof, pub)
	if err != nil {
		return nil, &shielder.ProofError{Action: "new account", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("new account: %w", shielder.ErrVerificationFailed)
	}

	elapsed := time.Since(start)
	a.log.Debug().Dur("proving_time", elapsed).Str("token", st.Token.String()).Msg("generated new account calldata")
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

// SendCalldata encodes the call through the ledger and hands it to send.
func (a *Action) SendCalldata(ctx context.Context, cd *Calldata, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	data, err := a.ledger.NewAccountCalldata(ctx, shielder.NewAccountCall{
		Version:      cd.ExpectedVersion,
		From:         from,
		Token:        cd.Token,
		Amount:       cd.Amount,
		NewNote:      cd.PublicInputs.HNote,
		Prenullifier: cd.PublicInputs.Prenullifier,
		ProtocolFee:  cd.ProtocolFee,
		Memo:         cd.Memo,
		Proof:        cd.Proof,
	})
	if err != nil {
		return common.Hash{}, note.WrapSendError("create new account", err)
	}
	hash, err := send(ctx, shielder.TxRequest{
		From:  from,
		To:    a.ledger.Address(),
		Data:  data,
		Value: note.NativeValue(cd.Token, cd.Amount),
	})
	if err != nil {
		return common.Hash{}, note.WrapSendError("create new account", err)
	}
	a.log.Info().Str("tx", hash.Hex()).Msg("sent new account transaction")
	return hash, nil
}

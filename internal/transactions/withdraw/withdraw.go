// Package withdraw moves funds out of an account, directly or through a relay.
package withdraw

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

// Calldata is a proven withdrawal ready to submit.
type Calldata struct {
	ExpectedVersion shielder.ProtocolVersion
	PublicInputs    shielder.WithdrawPublicInputs
	Proof           []byte
	ProvingTime     time.Duration
	Amount          *big.Int
	ProtocolFee     *big.Int
	Recipient       common.Address
	RelayerAddress  common.Address
	TotalFee        *big.Int
	Token           shielder.Token
	Memo            []byte
}

// Request describes one withdrawal. Amount includes TotalFee.
type Request struct {
	Amount          *big.Int
	Recipient       common.Address
	RelayerAddress  common.Address
	TotalFee        *big.Int
	ProtocolFee     *big.Int
	ExpectedVersion shielder.ProtocolVersion
	Memo            []byte
}

// Action moves funds out of an account.
type Action struct {
	*note.Action
	ledger  shielder.Ledger
	relayer shielder.Relayer
	log     zerolog.Logger
}

// New submits directly through ledger or through relayer.
func New(ledger shielder.Ledger, relayer shielder.Relayer, crypto *shielder.CryptoClient, logger zerolog.Logger) *Action {
	return &Action{
		Action:  note.NewAction(crypto),
		ledger:  ledger,
		relayer: relayer,
		log:     logger.With().Str("component", "withdraw").Logger(),
	}
}

// RawTransition subtracts amount from the balance; nil when funds are insufficient.
func (a *Action) RawTransition(ctx context.Context, st *shielder.AccountState, amount *big.Int) (*shielder.AccountState, error) {
	return a.RawAction(ctx, st, amount, func(current, amount *big.Int) *big.Int {
		return current.Sub(current, amount)
	})
}

// PreparePublicInputs recomputes the new note and binds it to the old nullifier, the
// tree root and the commitment.
func (a *Action) PreparePublicInputs(ctx context.Context, st *shielder.AccountState, req Request,
	nullifierOld, merkleRoot, commitment shielder.Scalar) (shielder.WithdrawPublicInputs, error) {
	next, err := a.RawTransition(ctx, st, req.Amount)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	if next == nil {
		return shielder.WithdrawPublicInputs{}, fmt.Errorf("failed to withdraw: %w", shielder.ErrNegativeBalance)
	}
	hNullifierOld, err := shielder.HashNullifier(ctx, a.Crypto.Hasher, nullifierOld)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	value, err := note.AmountScalar("amount", req.Amount)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee(req))
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	return shielder.WithdrawPublicInputs{
		MerkleRoot:    merkleRoot,
		HNullifierOld: hNullifierOld,
		HNoteNew:      next.CurrentNote,
		Value:         value,
		TokenAddress:  st.Token.Field(),
		Commitment:    commitment,
		ProtocolFee:   fee,
	}, nil
}

// GenerateCalldata checks funds and fees, then proves and verifies the withdrawal.
func (a *Action) GenerateCalldata(ctx context.Context, st *shielder.AccountState, req Request) (*Calldata, error) {
	if req.TotalFee == nil {
		req.TotalFee = new(big.Int)
	}
	balance := st.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	if balance.Cmp(req.Amount) < 0 {
		return nil, shielder.ErrInsufficientFunds
	}
	if req.Amount.Cmp(req.TotalFee) < 0 {
		return nil, fmt.Errorf("%w: amount must be greater than the relayer fee: %s", shielder.ErrFeeExceedsAmount, req.TotalFee)
	}
	if !st.HasNoteIndex() || st.Nonce == 0 {
		return nil, shielder.ErrNoNoteIndex
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
	commitment := shielder.WithdrawCommitment(req.ExpectedVersion, req.Recipient, req.RelayerAddress, req.TotalFee)
	balanceOld, err := note.AmountScalar("balance", balance)
	if err != nil {
		return nil, err
	}
	value, err := note.AmountScalar("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := note.AmountScalar("protocol fee", protocolFee(req))
	if err != nil {
		return nil, err
	}
	advice := shielder.WithdrawAdvice{
		NoteVersion:  shielder.CurrentVersion.NoteVersion(),
		ID:           st.ID,
		NullifierOld: oldSecrets.Nullifier,
		BalanceOld:   balanceOld,
		TokenAddress: st.Token.Field(),
		Path:         path,
		Value:        value,
		NullifierNew: newSecrets.Nullifier,
		Commitment:   commitment,
		ProtocolFee:  fee,
	}

	proof, err := a.Crypto.Withdraw.Prove(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "withdrawal", Err: err}
	}
	pub, err := a.PreparePublicInputs(ctx, st, req, oldSecrets.Nullifier, root, commitment)
	if err != nil {
		return nil, err
	}
	oraclePub, err := a.Crypto.Withdraw.PublicInputs(ctx, advice)
	if err != nil {
		return nil, &shielder.ProofError{Action: "withdrawal", Err: err}
	}
	if !oraclePub.HNoteNew.Equal(pub.HNoteNew) {
		return nil, &shielder.ProofError{Action: "withdrawal", Err: errors.New("oracle note differs from local transition")}
	}
	ok, err := a.Crypto.Withdraw.Verify(ctx, proof, pub)
	if err != nil {
		return nil, &shielder.ProofError{Action: "withdrawal", Err: err}
	}
	if !ok {
		return nil, fmt.Errorf("withdrawal: %w", shielder.ErrVerificationFailed)
	}

	elapsed := time.Since(start)
	a.log.Debug().Dur("proving_time", elapsed).Uint64("nonce", st.Nonce).Msg("generated withdraw calldata")
	return &Calldata{
		ExpectedVersion: req.ExpectedVersion,
		PublicInputs:    pub,
		Proof:           proof,
		ProvingTime:     elapsed,
		Amount:          new(big.Int).Set(req.Amount),
		ProtocolFee:     new(big.Int).Set(protocolFee(req)),
		Recipient:       req.Recipient,
		RelayerAddress:  req.RelayerAddress,
		TotalFee:        new(big.Int).Set(req.TotalFee),
		Token:           st.Token,
		Memo:            req.Memo,
	}, nil
}

func (cd *Calldata) call(from common.Address) shielder.WithdrawCall {
	return shielder.WithdrawCall{
		Version:          cd.ExpectedVersion,
		From:             from,
		Token:            cd.Token,
		Amount:           cd.Amount,
		Recipient:        cd.Recipient,
		RelayerAddress:   cd.RelayerAddress,
		RelayerFee:       cd.TotalFee,
		OldNullifierHash: cd.PublicInputs.HNullifierOld,
		NewNote:          cd.PublicInputs.HNoteNew,
		MerkleRoot:       cd.PublicInputs.MerkleRoot,
		ProtocolFee:      cd.ProtocolFee,
		Memo:             cd.Memo,
		Proof:            cd.Proof,
	}
}

// SendCalldataWithRelayer hands the withdrawal to the relay.
func (a *Action) SendCalldataWithRelayer(ctx context.Context, cd *Calldata) (common.Hash, error) {
	resp, err := a.relayer.Withdraw(ctx, cd.call(common.Address{}))
	if err != nil {
		return common.Hash{}, note.WrapSendError("withdraw", err)
	}
	a.log.Info().Str("tx", resp.TxHash.Hex()).Msg("relayed withdraw transaction")
	return resp.TxHash, nil
}

// SendCalldata submits the withdrawal directly; the calldata's relayer address is
// normally the sender.
func (a *Action) SendCalldata(ctx context.Context, cd *Calldata, send shielder.SendTxFunc, from common.Address) (common.Hash, error) {
	data, err := a.ledger.WithdrawCalldata(ctx, cd.call(from))
	if err != nil {
		return common.Hash{}, note.WrapSendError("withdraw", err)
	}
	hash, err := send(ctx, shielder.TxRequest{
		From:  from,
		To:    a.ledger.Address(),
		Data:  data,
		Value: new(big.Int),
	})
	if err != nil {
		return common.Hash{}, note.WrapSendError("withdraw", err)
	}
	a.log.Info().Str("tx", hash.Hex()).Msg("sent withdraw transaction")
	return hash, nil
}

func protocolFee(req Request) *big.Int {
	if req.ProtocolFee == nil {
		return new(big.Int)
	}
	return req.ProtocolFee
}

// circuits.go - Clear-text statement checks standing in for the action circuits.

package devoracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"shielder/internal/shielder"
)

var errNegativeBalance = errors.New("statement implies a negative balance")

// transcript binds a proof to its action kind and public inputs.
func transcript(kind string, inputs ...shielder.Scalar) []byte {
	parts := make([][]byte, 0, len(inputs)+1)
	parts = append(parts, []byte("shielder-dev-proof/"+kind))
	for _, in := range inputs {
		b := in.Bytes()
		parts = append(parts, b[:])
	}
	return crypto.Keccak256(parts...)
}

// subtract returns a-b as a scalar, failing when the integer result is negative.
func subtract(a, b shielder.Scalar) (shielder.Scalar, error) {
	d := new(big.Int).Sub(a.BigInt(), b.BigInt())
	if d.Sign() < 0 {
		return shielder.Scalar{}, errNegativeBalance
	}
	return shielder.ScalarFromBigInt(d)
}

func add(a, b shielder.Scalar) (shielder.Scalar, error) {
	return shielder.ScalarFromBigInt(new(big.Int).Add(a.BigInt(), b.BigInt()))
}

// NewAccountCircuit checks the NewAccount relation.
type NewAccountCircuit struct {
	hasher shielder.Hasher
}

func (c *NewAccountCircuit) PublicInputs(ctx context.Context, a shielder.NewAccountAdvice) (shielder.NewAccountPublicInputs, error) {
	balance, err := subtract(a.InitialDeposit, a.ProtocolFee)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	hNote, err := shielder.HashNote(ctx, c.hasher, a.NoteVersion, a.ID, a.Nullifier, balance, a.TokenAddress)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	prenullifier, err := shielder.HashNullifier(ctx, c.hasher, a.ID)
	if err != nil {
		return shielder.NewAccountPublicInputs{}, err
	}
	return shielder.NewAccountPublicInputs{
		HNote:          hNote,
		Prenullifier:   prenullifier,
		InitialDeposit: a.InitialDeposit,
		CallerAddress:  a.CallerAddress,
		TokenAddress:   a.TokenAddress,
		ProtocolFee:    a.ProtocolFee,
	}, nil
}

func (c *NewAccountCircuit) Prove(ctx context.Context, a shielder.NewAccountAdvice) ([]byte, error) {
	pub, err := c.PublicInputs(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("new account statement does not hold: %w", err)
	}
	return newAccountTranscript(pub), nil
}

func (c *NewAccountCircuit) Verify(_ context.Context, proof []byte, pub shielder.NewAccountPublicInputs) (bool, error) {
	return bytes.Equal(proof, newAccountTranscript(pub)), nil
}

func newAccountTranscript(p shielder.NewAccountPublicInputs) []byte {
	return transcript("new_account", p.HNote, p.Prenullifier, p.InitialDeposit, p.CallerAddress, p.TokenAddress, p.ProtocolFee)
}

// DepositCircuit checks the Deposit relation.
type DepositCircuit struct {
	hasher shielder.Hasher
	arity  int
}

func (c *DepositCircuit) PublicInputs(ctx context.Context, a shielder.DepositAdvice) (shielder.DepositPublicInputs, error) {
	oldNote, err := shielder.HashNote(ctx, c.hasher, a.NoteVersion, a.ID, a.NullifierOld, a.BalanceOld, a.TokenAddress)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	root, err := merkleRoot(ctx, c.hasher, c.arity, oldNote, a.Path)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	added, err := add(a.BalanceOld, a.Value)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	balanceNew, err := subtract(added, a.ProtocolFee)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	hNoteNew, err := shielder.HashNote(ctx, c.hasher, a.NoteVersion, a.ID, a.NullifierNew, balanceNew, a.TokenAddress)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	hNullifierOld, err := shielder.HashNullifier(ctx, c.hasher, a.NullifierOld)
	if err != nil {
		return shielder.DepositPublicInputs{}, err
	}
	return shielder.DepositPublicInputs{
		MerkleRoot:    root,
		HNullifierOld: hNullifierOld,
		HNoteNew:      hNoteNew,
		Value:         a.Value,
		CallerAddress: a.CallerAddress,
		TokenAddress:  a.TokenAddress,
		ProtocolFee:   a.ProtocolFee,
	}, nil
}

func (c *DepositCircuit) Prove(ctx context.Context, a shielder.DepositAdvice) ([]byte, error) {
	pub, err := c.PublicInputs(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("deposit statement does not hold: %w", err)
	}
	return depositTranscript(pub), nil
}

func (c *DepositCircuit) Verify(_ context.Context, proof []byte, pub shielder.DepositPublicInputs) (bool, error) {
	return bytes.Equal(proof, depositTranscript(pub)), nil
}

func depositTranscript(p shielder.DepositPublicInputs) []byte {
	return transcript("deposit", p.MerkleRoot, p.HNullifierOld, p.HNoteNew, p.Value, p.CallerAddress, p.TokenAddress, p.ProtocolFee)
}

// WithdrawCircuit checks the Withdraw relation.
type WithdrawCircuit struct {
	hasher shielder.Hasher
	arity  int
}

func (c *WithdrawCircuit) PublicInputs(ctx context.Context, a shielder.WithdrawAdvice) (shielder.WithdrawPublicInputs, error) {
	oldNote, err := shielder.HashNote(ctx, c.hasher, a.NoteVersion, a.ID, a.NullifierOld, a.BalanceOld, a.TokenAddress)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	root, err := merkleRoot(ctx, c.hasher, c.arity, oldNote, a.Path)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	balanceNew, err := subtract(a.BalanceOld, a.Value)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	hNoteNew, err := shielder.HashNote(ctx, c.hasher, a.NoteVersion, a.ID, a.NullifierNew, balanceNew, a.TokenAddress)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	hNullifierOld, err := shielder.HashNullifier(ctx, c.hasher, a.NullifierOld)
	if err != nil {
		return shielder.WithdrawPublicInputs{}, err
	}
	return shielder.WithdrawPublicInputs{
		MerkleRoot:    root,
		HNullifierOld: hNullifierOld,
		HNoteNew:      hNoteNew,
		Value:         a.Value,
		TokenAddress:  a.TokenAddress,
		Commitment:    a.Commitment,
		ProtocolFee:   a.ProtocolFee,
	}, nil
}

func (c *WithdrawCircuit) Prove(ctx context.Context, a shielder.WithdrawAdvice) ([]byte, error) {
	pub, err := c.PublicInputs(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("withdraw statement does not hold: %w", err)
	}
	return withdrawTranscript(pub), nil
}

func (c *WithdrawCircuit) Verify(_ context.Context, proof []byte, pub shielder.WithdrawPublicInputs) (bool, error) {
	return bytes.Equal(proof, withdrawTranscript(pub)), nil
}

func withdrawTranscript(p shielder.WithdrawPublicInputs) []byte {
	return transcript("withdraw", p.MerkleRoot, p.HNullifierOld, p.HNoteNew, p.Value, p.TokenAddress, p.Commitment, p.ProtocolFee)
}

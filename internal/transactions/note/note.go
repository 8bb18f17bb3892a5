// Package note holds the logic shared by every note-producing action: the raw state
// transition, Merkle path handling and submission error mapping.
package note

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"shielder/internal/shielder"
)

// BalanceChange computes the new balance of an action from the current one.
type BalanceChange func(current, amount *big.Int) *big.Int

// Action carries the oracle handles used by all action kinds.
type Action struct {
	Crypto *shielder.CryptoClient
}

// NewAction uses crypto for hashing and secrets.
func NewAction(crypto *shielder.CryptoClient) *Action {
	return &Action{Crypto: crypto}
}

// RawAction advances old by one nonce. The new note commits to the nullifier of
// (id, old nonce). It returns nil when the new balance would be negative.
// The result has no note index; the ledger assigns it.
func (a *Action) RawAction(ctx context.Context, old *shielder.AccountState, amount *big.Int, change BalanceChange) (*shielder.AccountState, error) {
	current := old.Balance
	if current == nil {
		current = new(big.Int)
	}
	balance := change(new(big.Int).Set(current), amount)
	if balance.Sign() < 0 {
		return nil, nil
	}
	balanceField, err := shielder.ScalarFromBigInt(balance)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	secrets, err := a.Crypto.Secrets.DeriveSecrets(ctx, old.ID, old.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to derive secrets: %w", err)
	}
	note, err := shielder.HashNote(ctx, a.Crypto.Hasher,
		shielder.CurrentVersion.NoteVersion(), old.ID, secrets.Nullifier, balanceField, old.Token.Field())
	if err != nil {
		return nil, fmt.Errorf("failed to hash note: %w", err)
	}
	return &shielder.AccountState{
		ID:          old.ID,
		Token:       old.Token,
		Nonce:       old.Nonce + 1,
		Balance:     balance,
		CurrentNote: note,
	}, nil
}

// MerklePathAndRoot checks the raw path length against the tree shape and splits off
// the root (the last element).
func (a *Action) MerklePathAndRoot(ctx context.Context, raw []*big.Int) ([]shielder.Scalar, shielder.Scalar, error) {
	height, err := a.Crypto.Tree.Height(ctx)
	if err != nil {
		return nil, shielder.Scalar{}, err
	}
	arity, err := a.Crypto.Tree.Arity(ctx)
	if err != nil {
		return nil, shielder.Scalar{}, err
	}
	if want := height*arity + 1; len(raw) != want {
		return nil, shielder.Scalar{}, fmt.Errorf("%w: got %d, expected %d", shielder.ErrWrongPathLength, len(raw), want)
	}
	path := make([]shielder.Scalar, len(raw))
	for i, v := range raw {
		s, err := shielder.ScalarFromBigInt(v)
		if err != nil {
			return nil, shielder.Scalar{}, fmt.Errorf("merkle path element %d: %w", i, err)
		}
		path[i] = s
	}
	return path[:len(path)-1], path[len(path)-1], nil
}

// OldAndNewSecrets returns the secrets of (id, nonce-1) and (id, nonce) for an
// account that already has a note.
func (a *Action) OldAndNewSecrets(ctx context.Context, st *shielder.AccountState) (shielder.Secrets, shielder.Secrets, error) {
	if st.Nonce == 0 {
		return shielder.Secrets{}, shielder.Secrets{}, errors.New("account has no note yet")
	}
	old, err := a.Crypto.Secrets.DeriveSecrets(ctx, st.ID, st.Nonce-1)
	if err != nil {
		return shielder.Secrets{}, shielder.Secrets{}, fmt.Errorf("failed to derive secrets: %w", err)
	}
	next, err := a.Crypto.Secrets.DeriveSecrets(ctx, st.ID, st.Nonce)
	if err != nil {
		return shielder.Secrets{}, shielder.Secrets{}, fmt.Errorf("failed to derive secrets: %w", err)
	}
	return old, next, nil
}

// WrapSendError passes protocol version rejections through unchanged and wraps every
// other submission failure as a TransportError.
func WrapSendError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shielder.ErrProtocolVersion) {
		return err
	}
	return &shielder.TransportError{Op: op, Err: err}
}

// NativeValue is the value attached to a transaction: the amount for the native
// token, zero otherwise.
func NativeValue(token shielder.Token, amount *big.Int) *big.Int {
	if token.IsNative() {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

// AmountScalar converts an amount to a circuit input.
func AmountScalar(name string, v *big.Int) (shielder.Scalar, error) {
	s, err := shielder.ScalarFromBigInt(v)
	if err != nil {
		return shielder.Scalar{}, fmt.Errorf("%w: %s: %v", shielder.ErrValidation, name, err)
	}
	return s, nil
}

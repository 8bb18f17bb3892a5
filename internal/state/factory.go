package state

import (
	"context"
	"math/big"

	"shielder/internal/shielder"
)

// AccountFactory builds empty account states.
type AccountFactory struct {
	ids *IDManager
}

// NewAccountFactory takes ids from ids.
func NewAccountFactory(ids *IDManager) *AccountFactory {
	return &AccountFactory{ids: ids}
}

// CreateEmptyAccountState returns a zero-nonce, zero-balance state with no note.
func (f *AccountFactory) CreateEmptyAccountState(ctx context.Context, token shielder.Token) (*shielder.AccountState, error) {
	id, err := f.ids.ID(ctx, token)
	if err != nil {
		return nil, err
	}
	return &shielder.AccountState{
		ID:      id,
		Token:   token,
		Nonce:   0,
		Balance: new(big.Int),
	}, nil
}

// account.go - Off-chain account state.

package shielder

import "math/big"

// AccountState is the private state of one (seed, token) account.
//
// Nonce 0 means no note exists yet: Balance and CurrentNote are zero.
// CurrentNoteIndex is nil until a note of the account has been observed on the ledger.
type AccountState struct {
	ID               Scalar
	Token            Token
	Nonce            uint64
	Balance          *big.Int
	CurrentNote      Scalar
	CurrentNoteIndex *big.Int
}

// Clone returns a deep copy.
func (s *AccountState) Clone() *AccountState {
	c := *s
	c.Balance = new(big.Int).Set(s.balance())
	if s.CurrentNoteIndex != nil {
		c.CurrentNoteIndex = new(big.Int).Set(s.CurrentNoteIndex)
	}
	return &c
}

// HasNoteIndex reports whether the account has a note position in the tree.
func (s *AccountState) HasNoteIndex() bool {
	return s.CurrentNoteIndex != nil
}

// Equal compares two states field by field.
func (s *AccountState) Equal(o *AccountState) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !s.ID.Equal(o.ID) || s.Token != o.Token || s.Nonce != o.Nonce {
		return false
	}
	if s.balance().Cmp(o.balance()) != 0 || !s.CurrentNote.Equal(o.CurrentNote) {
		return false
	}
	if (s.CurrentNoteIndex == nil) != (o.CurrentNoteIndex == nil) {
		return false
	}
	return s.CurrentNoteIndex == nil || s.CurrentNoteIndex.Cmp(o.CurrentNoteIndex) == 0
}

func (s *AccountState) balance() *big.Int {
	if s.Balance == nil {
		return new(big.Int)
	}
	return s.Balance
}

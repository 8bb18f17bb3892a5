// serde.go - Conversion between account states and persisted records.

package state

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/shielder"
	"shielder/internal/storage"
)

// Serde converts account states to storage records and back.
type Serde struct {
	ids *IDManager
}

// NewSerde checks id hashes against ids.
func NewSerde(ids *IDManager) *Serde {
	return &Serde{ids: ids}
}

// ToRecord replaces the id with its hash and encodes integers as decimal strings.
func (s *Serde) ToRecord(ctx context.Context, st *shielder.AccountState) (storage.Record, error) {
	idHash, err := s.ids.IDHash(ctx, st.Token)
	if err != nil {
		return storage.Record{}, err
	}
	rec := storage.Record{
		IDHash:       idHash.String(),
		Nonce:        strconv.FormatUint(st.Nonce, 10),
		Balance:      balanceOf(st).String(),
		CurrentNote:  st.CurrentNote.String(),
		TokenAddress: st.Token.Address().Hex(),
	}
	if st.CurrentNoteIndex != nil {
		rec.CurrentNoteIndex = st.CurrentNoteIndex.String()
	}
	return rec, nil
}

// FromRecord validates the stored id hash before anything else and fails closed.
func (s *Serde) FromRecord(ctx context.Context, rec storage.Record) (*shielder.AccountState, error) {
	if !common.IsHexAddress(rec.TokenAddress) {
		return nil, fmt.Errorf("invalid tokenAddress %q", rec.TokenAddress)
	}
	token := shielder.TokenFromAddress(common.HexToAddress(rec.TokenAddress))

	storedHash, err := shielder.ParseScalar(rec.IDHash)
	if err != nil {
		return nil, &shielder.IntegrityError{Reason: fmt.Sprintf("invalid id hash: %v", err)}
	}
	if err := s.ids.ValidateIDHash(ctx, token, storedHash); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	id, err := s.ids.ID(ctx, token)
	if err != nil {
		return nil, err
	}

	nonce, err := strconv.ParseUint(rec.Nonce, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce %q: %w", rec.Nonce, err)
	}
	balance, _ := new(big.Int).SetString(rec.Balance, 10)
	note, err := shielder.ParseScalar(rec.CurrentNote)
	if err != nil {
		return nil, fmt.Errorf("invalid current note: %w", err)
	}
	st := &shielder.AccountState{
		ID:          id,
		Token:       token,
		Nonce:       nonce,
		Balance:     balance,
		CurrentNote: note,
	}
	if rec.CurrentNoteIndex != "" {
		st.CurrentNoteIndex, _ = new(big.Int).SetString(rec.CurrentNoteIndex, 10)
	}
	return st, nil
}

func balanceOf(st *shielder.AccountState) *big.Int {
	if st.Balance == nil {
		return new(big.Int)
	}
	return st.Balance
}

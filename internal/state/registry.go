// registry.go - Account states keyed by token.
//
// Registry does no locking. Two concurrent updates for different new tokens may race
// for the same slot; callers serialize writers per seed.

package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"shielder/internal/shielder"
	"shielder/internal/storage"
)

// Registry keeps one account state per token of a seed.
type Registry struct {
	storage *storage.Manager
	factory *AccountFactory
	serde   *Serde
	ids     *IDManager
	log     zerolog.Logger
}

// NewRegistry stores states through sm and checks them against ids.
func NewRegistry(sm *storage.Manager, ids *IDManager, logger zerolog.Logger) *Registry {
	return &Registry{
		storage: sm,
		factory: NewAccountFactory(ids),
		serde:   NewSerde(ids),
		ids:     ids,
		log:     logger.With().Str("component", "registry").Logger(),
	}
}

// GetAccountState returns the persisted state for token, or a fresh empty state
// that is not persisted.
func (r *Registry) GetAccountState(ctx context.Context, token shielder.Token) (*shielder.AccountState, error) {
	found, err := r.storage.FindAccountByTokenAddress(ctx, token.Address().Hex())
	if err != nil {
		return nil, err
	}
	if found == nil {
		return r.factory.CreateEmptyAccountState(ctx, token)
	}
	st, err := r.serde.FromRecord(ctx, found.Record)
	if err != nil {
		return nil, fmt.Errorf("account slot %d: %w", found.Index, err)
	}
	return st, nil
}

// UpdateAccountState persists st for token, allocating the next slot on first write.
// The nonce must grow with every write.
func (r *Registry) UpdateAccountState(ctx context.Context, token shielder.Token, st *shielder.AccountState) error {
	if st.Token != token {
		return &shielder.IntegrityError{Reason: fmt.Sprintf("state of token %s stored under %s", st.Token, token)}
	}
	id, err := r.ids.ID(ctx, token)
	if err != nil {
		return err
	}
	if !id.Equal(st.ID) {
		return &shielder.IntegrityError{Reason: "account id does not match the id derived for the token"}
	}
	rec, err := r.serde.ToRecord(ctx, st)
	if err != nil {
		return err
	}

	found, err := r.storage.FindAccountByTokenAddress(ctx, token.Address().Hex())
	if err != nil {
		return err
	}
	if found == nil {
		slot, err := r.storage.SaveRawAccountAndIncrementNextAccountIndex(ctx, rec)
		if err != nil {
			return err
		}
		r.log.Info().Uint64("slot", slot).Str("token", token.String()).Msg("created account")
		return nil
	}

	storedNonce, err := strconv.ParseUint(found.Record.Nonce, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid stored nonce %q: %w", found.Record.Nonce, err)
	}
	if st.Nonce <= storedNonce {
		return fmt.Errorf("%w: stored %d, new %d", shielder.ErrStaleState, storedNonce, st.Nonce)
	}
	if err := r.storage.SaveRawAccount(ctx, found.Index, rec); err != nil {
		return err
	}
	r.log.Debug().Uint64("slot", found.Index).Uint64("nonce", st.Nonce).Msg("updated account")
	return nil
}

// GetTokenByAccountIndex reads the token of a persisted slot.
func (r *Registry) GetTokenByAccountIndex(ctx context.Context, slot uint64) (shielder.Token, bool, error) {
	rec, err := r.storage.GetRawAccount(ctx, slot)
	if err != nil || rec == nil {
		return shielder.Token{}, false, err
	}
	return shielder.TokenFromAddress(common.HexToAddress(rec.TokenAddress)), true, nil
}

// AccountStatesList returns every persisted state in slot order.
func (r *Registry) AccountStatesList(ctx context.Context) ([]*shielder.AccountState, error) {
	all, err := r.storage.AllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*shielder.AccountState, 0, len(all))
	for _, ir := range all {
		st, err := r.serde.FromRecord(ctx, ir.Record)
		if err != nil {
			return nil, fmt.Errorf("account slot %d: %w", ir.Index, err)
		}
		out = append(out, st)
	}
	return out, nil
}

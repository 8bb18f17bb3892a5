package chainsync

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"shielder/internal/shielder"
)

// StateStore reads and persists account states; state.Registry implements it.
type StateStore interface {
	GetAccountState(ctx context.Context, token shielder.Token) (*shielder.AccountState, error)
	UpdateAccountState(ctx context.Context, token shielder.Token, st *shielder.AccountState) error
	GetTokenByAccountIndex(ctx context.Context, slot uint64) (shielder.Token, bool, error)
}

// TokenResolver lists the tokens of every account the seed created on the ledger,
// in creation order.
type TokenResolver interface {
	AccountTokens(ctx context.Context) ([]shielder.Token, error)
}

// TransactionFunc receives every transaction a sync applies, before it is persisted.
type TransactionFunc func(tx shielder.ShielderTransaction)

// Synchronizer brings persisted account states up to date with the ledger.
type Synchronizer struct {
	store  StateStore
	finder *Finder
	tokens TokenResolver
	// sem is held for a whole discover-then-persist loop.
	sem *semaphore.Weighted
	log zerolog.Logger
}

// NewSynchronizer persists into store what finder finds.
func NewSynchronizer(store StateStore, finder *Finder, tokens TokenResolver, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:  store,
		finder: finder,
		tokens: tokens,
		sem:    semaphore.NewWeighted(1),
		log:    logger.With().Str("component", "synchronizer").Logger(),
	}
}

// SyncSingleAccount applies every pending ledger transition of token's account,
// calling onTx and persisting after each one. onTx may be nil.
func (s *Synchronizer) SyncSingleAccount(ctx context.Context, token shielder.Token, onTx TransactionFunc) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := s.store.GetAccountState(ctx, token)
		if err != nil {
			return err
		}
		tr, err := s.finder.FindStateTransition(ctx, st)
		if err != nil {
			return err
		}
		if tr == nil {
			if applied > 0 {
				s.log.Info().Str("token", token.String()).Int("transactions", applied).Uint64("nonce", st.Nonce).Msg("account synced")
			}
			return nil
		}
		if onTx != nil {
			onTx(tr.Transaction)
		}
		if err := s.store.UpdateAccountState(ctx, token, tr.NewState); err != nil {
			return err
		}
		applied++
	}
}

// SyncAllAccounts syncs every stored account in slot order, then every account the
// ledger knows of that is not stored yet, in creation order. Accounts are matched
// by token, never by slot number.
func (s *Synchronizer) SyncAllAccounts(ctx context.Context, onTx TransactionFunc) error {
	var (
		tokens []shielder.Token
		seen   = make(map[string]bool)
	)
	for slot := uint64(0); ; slot++ {
		token, ok, err := s.store.GetTokenByAccountIndex(ctx, slot)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !seen[token.Key()] {
			seen[token.Key()] = true
			tokens = append(tokens, token)
		}
	}
	stored := len(tokens)

	discovered, err := s.tokens.AccountTokens(ctx)
	if err != nil {
		return err
	}
	for _, token := range discovered {
		if !seen[token.Key()] {
			seen[token.Key()] = true
			tokens = append(tokens, token)
		}
	}
	s.log.Debug().Int("stored", stored).Int("discovered", len(tokens)-stored).Msg("syncing all accounts")

	for _, token := range tokens {
		if err := s.SyncSingleAccount(ctx, token, onTx); err != nil {
			return err
		}
	}
	return nil
}

package chainsync

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shielder/internal/shielder"
)

// maxParallelLookups bounds concurrent ledger queries during slot discovery.
const maxParallelLookups = 8

// IDHasher yields the hashed account id of a token; it is also the pre-nullifier
// hash revealed when the account is created.
type IDHasher interface {
	IDHash(ctx context.Context, token shielder.Token) (shielder.Scalar, error)
}

// TokenAccountFinder recovers which token an account slot belongs to from the
// ledger alone. Account ids depend on the token, so it probes a list of candidate
// tokens for a NewAccount event and orders the accounts found by creation.
type TokenAccountFinder struct {
	events     EventSource
	ids        IDHasher
	candidates []shielder.Token
	log        zerolog.Logger
}

// NewTokenAccountFinder probes candidates in the given order.
func NewTokenAccountFinder(events EventSource, ids IDHasher, candidates []shielder.Token, logger zerolog.Logger) *TokenAccountFinder {
	return &TokenAccountFinder{
		events:     events,
		ids:        ids,
		candidates: append([]shielder.Token(nil), candidates...),
		log:        logger.With().Str("component", "token_finder").Logger(),
	}
}

type createdAccount struct {
	token     shielder.Token
	noteIndex uint64
	block     uint64
}

// AccountTokens returns the tokens of every account created on the ledger, in
// creation order. Each call probes all candidates once.
func (f *TokenAccountFinder) AccountTokens(ctx context.Context) ([]shielder.Token, error) {
	created, err := f.createdAccounts(ctx)
	if err != nil {
		return nil, err
	}
	tokens := make([]shielder.Token, len(created))
	for i, acc := range created {
		tokens[i] = acc.token
	}
	return tokens, nil
}

// FindTokenByAccountIndex returns the token of the slot-th account created on the
// ledger, and false when fewer accounts exist.
func (f *TokenAccountFinder) FindTokenByAccountIndex(ctx context.Context, slot uint64) (shielder.Token, bool, error) {
	tokens, err := f.AccountTokens(ctx)
	if err != nil {
		return shielder.Token{}, false, err
	}
	if slot >= uint64(len(tokens)) {
		return shielder.Token{}, false, nil
	}
	return tokens[slot], true, nil
}

func (f *TokenAccountFinder) createdAccounts(ctx context.Context) ([]createdAccount, error) {
	found := make([]*createdAccount, len(f.candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, token := range f.candidates {
		g.Go(func() error {
			acc, err := f.lookup(gctx, token)
			if err != nil {
				return err
			}
			found[i] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []createdAccount
	for _, acc := range found {
		if acc != nil {
			out = append(out, *acc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].block != out[j].block {
			return out[i].block < out[j].block
		}
		return out[i].noteIndex < out[j].noteIndex
	})
	f.log.Debug().Int("candidates", len(f.candidates)).Int("accounts", len(out)).Msg("discovered accounts")
	return out, nil
}

func (f *TokenAccountFinder) lookup(ctx context.Context, token shielder.Token) (*createdAccount, error) {
	prenullifierHash, err := f.ids.IDHash(ctx, token)
	if err != nil {
		return nil, err
	}
	block, ok, err := f.events.NullifierBlock(ctx, prenullifierHash.BigInt())
	if err != nil || !ok {
		return nil, err
	}
	events, err := f.events.GetNewAccountEventsFromBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	var matches []shielder.ProtocolEvent
	for _, ev := range events {
		if ev.Prenullifier.Equal(prenullifierHash) {
			matches = append(matches, ev)
		}
	}
	if len(matches) != 1 {
		return nil, &shielder.ConsistencyError{What: "new account events", Found: len(matches), Expected: 1}
	}
	acc := &createdAccount{token: token, block: block}
	if idx := matches[0].NewNoteIndex; idx != nil && idx.IsUint64() {
		acc.noteIndex = idx.Uint64()
	}
	return acc, nil
}

package chainsync

import (
	"context"

	"shielder/internal/shielder"
)

// EmptyStateFactory creates the state an account starts from.
type EmptyStateFactory interface {
	CreateEmptyAccountState(ctx context.Context, token shielder.Token) (*shielder.AccountState, error)
}

// Stream is a finite, non-restartable sequence of transactions. Once it reports the
// end or an error, every later call does the same.
type Stream struct {
	pull func(ctx context.Context) (shielder.ShielderTransaction, bool, error)
	done bool
	err  error
}

// Next returns the next transaction; ok is false at the end of the stream.
func (s *Stream) Next(ctx context.Context) (tx shielder.ShielderTransaction, ok bool, err error) {
	if s.done {
		return shielder.ShielderTransaction{}, false, s.err
	}
	tx, ok, err = s.pull(ctx)
	if err != nil || !ok {
		s.done, s.err = true, err
		return shielder.ShielderTransaction{}, false, err
	}
	return tx, true, nil
}

// Collect drains the stream.
func (s *Stream) Collect(ctx context.Context) ([]shielder.ShielderTransaction, error) {
	var out []shielder.ShielderTransaction
	for {
		tx, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, tx)
	}
}

// HistoryFetcher replays account histories from the ledger, independent of what is
// persisted locally.
type HistoryFetcher struct {
	factory EmptyStateFactory
	finder  *Finder
	tokens  TokenResolver
}

// NewHistoryFetcher replays with finder, starting from states made by factory.
func NewHistoryFetcher(factory EmptyStateFactory, finder *Finder, tokens TokenResolver) *HistoryFetcher {
	return &HistoryFetcher{factory: factory, finder: finder, tokens: tokens}
}

// TransactionHistorySingleToken replays token's account from an empty state.
func (h *HistoryFetcher) TransactionHistorySingleToken(token shielder.Token) *Stream {
	var st *shielder.AccountState
	return &Stream{pull: func(ctx context.Context) (shielder.ShielderTransaction, bool, error) {
		if st == nil {
			empty, err := h.factory.CreateEmptyAccountState(ctx, token)
			if err != nil {
				return shielder.ShielderTransaction{}, false, err
			}
			st = empty
		}
		tr, err := h.finder.FindStateTransition(ctx, st)
		if err != nil || tr == nil {
			return shielder.ShielderTransaction{}, false, err
		}
		st = tr.NewState
		return tr.Transaction, true, nil
	}}
}

// TransactionHistory replays every account the seed created on the ledger, in
// creation order. The accounts are discovered once, on the first pull.
func (h *HistoryFetcher) TransactionHistory() *Stream {
	var (
		tokens     []shielder.Token
		discovered bool
		current    *Stream
	)
	return &Stream{pull: func(ctx context.Context) (shielder.ShielderTransaction, bool, error) {
		if !discovered {
			found, err := h.tokens.AccountTokens(ctx)
			if err != nil {
				return shielder.ShielderTransaction{}, false, err
			}
			tokens, discovered = found, true
		}
		for {
			if current == nil {
				if len(tokens) == 0 {
					return shielder.ShielderTransaction{}, false, nil
				}
				current = h.TransactionHistorySingleToken(tokens[0])
				tokens = tokens[1:]
			}
			tx, ok, err := current.Next(ctx)
			if err != nil {
				return shielder.ShielderTransaction{}, false, err
			}
			if ok {
				return tx, true, nil
			}
			current = nil
		}
	}}
}

package chainsync

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"shielder/internal/shielder"
)

// EventSource is the read side of the ledger used for synchronization.
type EventSource interface {
	NullifierBlock(ctx context.Context, nullifierHash *big.Int) (uint64, bool, error)
	GetEventsFromBlock(ctx context.Context, block uint64) ([]shielder.ProtocolEvent, error)
	GetNewAccountEventsFromBlock(ctx context.Context, block uint64) ([]shielder.ProtocolEvent, error)
}

// StateTransition is one step of an account along the ledger.
type StateTransition struct {
	NewState    *shielder.AccountState
	Transaction shielder.ShielderTransaction
}

// Finder locates the ledger event that follows a state. It keeps no state between
// calls.
type Finder struct {
	events     EventSource
	crypto     *shielder.CryptoClient
	transition *LocalStateTransition
	log        zerolog.Logger
}

// NewFinder reads events from events and applies them with transition.
func NewFinder(events EventSource, crypto *shielder.CryptoClient, transition *LocalStateTransition, logger zerolog.Logger) *Finder {
	return &Finder{
		events:     events,
		crypto:     crypto,
		transition: transition,
		log:        logger.With().Str("component", "finder").Logger(),
	}
}

// FindStateTransition returns the transition following st, or nil when st is the
// latest state on the ledger.
func (f *Finder) FindStateTransition(ctx context.Context, st *shielder.AccountState) (*StateTransition, error) {
	nullifier, err := shielder.NullifierForNextAction(ctx, f.crypto.Secrets, st)
	if err != nil {
		return nil, fmt.Errorf("failed to derive nullifier: %w", err)
	}
	hash, err := shielder.HashNullifier(ctx, f.crypto.Hasher, nullifier)
	if err != nil {
		return nil, fmt.Errorf("failed to hash nullifier: %w", err)
	}
	block, found, err := f.events.NullifierBlock(ctx, hash.BigInt())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	events, err := f.events.GetEventsFromBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	candidates, err := f.transition.StateChangingEvents(ctx, st, events)
	if err != nil {
		return nil, err
	}
	if len(candidates) != 1 {
		return nil, &shielder.ConsistencyError{What: "state changing events", Found: len(candidates), Expected: 1}
	}
	ev := candidates[0]
	if !shielder.IsVersionSupported(ev.Version) {
		return nil, &shielder.UnexpectedVersionInEventError{Version: ev.Version}
	}
	next, err := f.transition.Apply(ctx, st, ev)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("%w: %s in block %d", shielder.ErrNoTransition, ev.Kind, block)
	}
	f.log.Debug().Uint64("block", block).Str("kind", ev.Kind.String()).Uint64("nonce", next.Nonce).Msg("found state transition")
	return &StateTransition{NewState: next, Transaction: ev.Transaction()}, nil
}

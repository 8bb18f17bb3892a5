package chainsync

import (
	"context"
	"fmt"
	"math/big"

	"shielder/internal/shielder"
)

// RawTransitioner is the pure state transition of one action kind.
type RawTransitioner interface {
	RawTransition(ctx context.Context, st *shielder.AccountState, amount *big.Int) (*shielder.AccountState, error)
}

// LocalStateTransition projects ledger events onto a local state without touching
// the ledger.
type LocalStateTransition struct {
	newAccount RawTransitioner
	deposit    RawTransitioner
	withdraw   RawTransitioner
}

// NewLocalStateTransition applies events with the per-kind transitions.
func NewLocalStateTransition(newAccount, deposit, withdraw RawTransitioner) *LocalStateTransition {
	return &LocalStateTransition{newAccount: newAccount, deposit: deposit, withdraw: withdraw}
}

// Apply returns the state ev leads to, with the event's note index attached, or nil
// when the transition is infeasible.
func (t *LocalStateTransition) Apply(ctx context.Context, st *shielder.AccountState, ev shielder.ProtocolEvent) (*shielder.AccountState, error) {
	var (
		next *shielder.AccountState
		err  error
	)
	switch ev.Kind {
	case shielder.EventNewAccount:
		next, err = t.newAccount.RawTransition(ctx, st, netOfFee(ev))
	case shielder.EventDeposit:
		next, err = t.deposit.RawTransition(ctx, st, netOfFee(ev))
	case shielder.EventWithdraw:
		next, err = t.withdraw.RawTransition(ctx, st, amountOf(ev))
	default:
		return nil, fmt.Errorf("unknown event kind %s", ev.Kind)
	}
	if err != nil || next == nil {
		return nil, err
	}
	if ev.NewNoteIndex != nil {
		next.CurrentNoteIndex = new(big.Int).Set(ev.NewNoteIndex)
	}
	return next, nil
}

// StateChangingEvents keeps the events whose note is the one st would produce.
func (t *LocalStateTransition) StateChangingEvents(ctx context.Context, st *shielder.AccountState, events []shielder.ProtocolEvent) ([]shielder.ProtocolEvent, error) {
	var out []shielder.ProtocolEvent
	for _, ev := range events {
		next, err := t.Apply(ctx, st, ev)
		if err != nil {
			return nil, err
		}
		if next != nil && next.CurrentNote.Equal(ev.NewNote) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func amountOf(ev shielder.ProtocolEvent) *big.Int {
	if ev.Amount == nil {
		return new(big.Int)
	}
	return ev.Amount
}

// netOfFee is what a shielding event adds to the balance.
func netOfFee(ev shielder.ProtocolEvent) *big.Int {
	net := new(big.Int).Set(amountOf(ev))
	if ev.ProtocolFee != nil {
		net.Sub(net, ev.ProtocolFee)
	}
	return net
}

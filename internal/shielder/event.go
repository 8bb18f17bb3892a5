// event.go - Protocol events read from the ledger and their user-facing projection.

package shielder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind is the closed set of note-producing protocol actions.
type EventKind uint8

const (
	EventNewAccount EventKind = iota + 1
	EventDeposit
	EventWithdraw
)

func (k EventKind) String() string {
	switch k {
	case EventNewAccount:
		return "NewAccount"
	case EventDeposit:
		return "Deposit"
	case EventWithdraw:
		return "Withdraw"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "NewAccount":
		*k = EventNewAccount
	case "Deposit":
		*k = EventDeposit
	case "Withdraw":
		*k = EventWithdraw
	default:
		return fmt.Errorf("unknown event kind %q", text)
	}
	return nil
}

// ProtocolEvent is a note event emitted by the ledger. Events are scoped to one block.
type ProtocolEvent struct {
	Kind         EventKind       `json:"kind"`
	Version      ProtocolVersion `json:"version"`
	Amount       *big.Int        `json:"amount"`
	ProtocolFee  *big.Int        `json:"protocolFee"`
	NewNote      Scalar          `json:"newNote"`
	NewNoteIndex *big.Int        `json:"newNoteIndex"`
	TxHash       common.Hash     `json:"txHash"`
	Block        uint64          `json:"block"`
	TokenAddress common.Address  `json:"tokenAddress"`

	// Prenullifier is the hashed account id; set on NewAccount events only.
	Prenullifier Scalar `json:"prenullifier"`

	Recipient      *common.Address `json:"recipient,omitempty"`
	RelayerAddress *common.Address `json:"relayerAddress,omitempty"`
	RelayerFee     *big.Int        `json:"relayerFee,omitempty"`
	Memo           []byte          `json:"memo,omitempty"`
}

// ShielderTransaction is what callers see of a protocol event touching their account.
type ShielderTransaction struct {
	Kind        EventKind       `json:"type"`
	Amount      *big.Int        `json:"amount"`
	Token       Token           `json:"token"`
	TxHash      common.Hash     `json:"txHash"`
	Block       uint64          `json:"block"`
	ProtocolFee *big.Int        `json:"protocolFee,omitempty"`
	Recipient   *common.Address `json:"to,omitempty"`
	RelayerFee  *big.Int        `json:"relayerFee,omitempty"`
	Memo        []byte          `json:"memo,omitempty"`
}

// Transaction projects the event.
func (e *ProtocolEvent) Transaction() ShielderTransaction {
	return ShielderTransaction{
		Kind:        e.Kind,
		Amount:      e.Amount,
		Token:       TokenFromAddress(e.TokenAddress),
		TxHash:      e.TxHash,
		Block:       e.Block,
		ProtocolFee: e.ProtocolFee,
		Recipient:   e.Recipient,
		RelayerFee:  e.RelayerFee,
		Memo:        e.Memo,
	}
}

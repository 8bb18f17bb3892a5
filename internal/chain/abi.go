// abi.go - Shielder contract ABI and codecs for calls, events and reverts.

package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"shielder/internal/shielder"
)

const shielderABIJSON = `[
{"type":"function","name":"newAccountNative","stateMutability":"payable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"newNote","type":"uint256"},
 {"name":"prenullifier","type":"uint256"},{"name":"protocolFee","type":"uint256"},
 {"name":"memo","type":"bytes"},{"name":"proof","type":"bytes"}],"outputs":[]},
{"type":"function","name":"newAccountERC20","stateMutability":"nonpayable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"tokenAddress","type":"address"},
 {"name":"amount","type":"uint256"},{"name":"newNote","type":"uint256"},
 {"name":"prenullifier","type":"uint256"},{"name":"protocolFee","type":"uint256"},
 {"name":"memo","type":"bytes"},{"name":"proof","type":"bytes"}],"outputs":[]},
{"type":"function","name":"depositNative","stateMutability":"payable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"oldNullifierHash","type":"uint256"},
 {"name":"newNote","type":"uint256"},{"name":"merkleRoot","type":"uint256"},
 {"name":"protocolFee","type":"uint256"},{"name":"memo","type":"bytes"},{"name":"proof","type":"bytes"}],"outputs":[]},
{"type":"function","name":"depositERC20","stateMutability":"nonpayable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"tokenAddress","type":"address"},
 {"name":"amount","type":"uint256"},{"name":"oldNullifierHash","type":"uint256"},
 {"name":"newNote","type":"uint256"},{"name":"merkleRoot","type":"uint256"},
 {"name":"protocolFee","type":"uint256"},{"name":"memo","type":"bytes"},{"name":"proof","type":"bytes"}],"outputs":[]},
{"type":"function","name":"withdrawNative","stateMutability":"nonpayable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"amount","type":"uint256"},
 {"name":"withdrawalAddress","type":"address"},{"name":"merkleRoot","type":"uint256"},
 {"name":"oldNullifierHash","type":"uint256"},{"name":"newNote","type":"uint256"},
 {"name":"proof","type":"bytes"},{"name":"relayerAddress","type":"address"},
 {"name":"relayerFee","type":"uint256"},{"name":"protocolFee","type":"uint256"},
 {"name":"memo","type":"bytes"}],"outputs":[]},
{"type":"function","name":"withdrawERC20","stateMutability":"nonpayable","inputs":[
 {"name":"expectedContractVersion","type":"bytes3"},{"name":"tokenAddress","type":"address"},
 {"name":"amount","type":"uint256"},{"name":"withdrawalAddress","type":"address"},
 {"name":"merkleRoot","type":"uint256"},{"name":"oldNullifierHash","type":"uint256"},
 {"name":"newNote","type":"uint256"},{"name":"proof","type":"bytes"},
 {"name":"relayerAddress","type":"address"},{"name":"relayerFee","type":"uint256"},
 {"name":"protocolFee","type":"uint256"},{"name":"memo","type":"bytes"}],"outputs":[]},
{"type":"function","name":"nullifiers","stateMutability":"view","inputs":[{"name":"nullifierHash","type":"uint256"}],
 "outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getMerklePath","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],
 "outputs":[{"name":"","type":"uint256[]"}]},
{"type":"function","name":"protocolDepositFeeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"protocolWithdrawFeeBps","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"event","name":"NewAccount","anonymous":false,"inputs":[
 {"name":"contractVersion","type":"bytes3","indexed":false},{"name":"tokenAddress","type":"address","indexed":false},
 {"name":"amount","type":"uint256","indexed":false},{"name":"prenullifier","type":"uint256","indexed":false},
 {"name":"newNote","type":"uint256","indexed":false},{"name":"newNoteIndex","type":"uint256","indexed":false},
 {"name":"protocolFee","type":"uint256","indexed":false},{"name":"memo","type":"bytes","indexed":false}]},
{"type":"event","name":"Deposit","anonymous":false,"inputs":[
 {"name":"contractVersion","type":"bytes3","indexed":false},{"name":"tokenAddress","type":"address","indexed":false},
 {"name":"amount","type":"uint256","indexed":false},{"name":"newNote","type":"uint256","indexed":false},
 {"name":"newNoteIndex","type":"uint256","indexed":false},{"name":"protocolFee","type":"uint256","indexed":false},
 {"name":"memo","type":"bytes","indexed":false}]},
{"type":"event","name":"Withdraw","anonymous":false,"inputs":[
 {"name":"contractVersion","type":"bytes3","indexed":false},{"name":"tokenAddress","type":"address","indexed":false},
 {"name":"amount","type":"uint256","indexed":false},{"name":"withdrawalAddress","type":"address","indexed":false},
 {"name":"newNote","type":"uint256","indexed":false},{"name":"newNoteIndex","type":"uint256","indexed":false},
 {"name":"relayerAddress","type":"address","indexed":false},{"name":"fee","type":"uint256","indexed":false},
 {"name":"protocolFee","type":"uint256","indexed":false},{"name":"memo","type":"bytes","indexed":false}]},
{"type":"error","name":"WrongContractVersion","inputs":[
 {"name":"actual","type":"bytes3"},{"name":"expectedByCaller","type":"bytes3"}]}
]`

// ShielderABI is the parsed contract interface.
var ShielderABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(shielderABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid shielder ABI: %v", err))
	}
	return parsed
}

var errUnknownSelector = errors.New("unknown shielder method selector")

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// PackNewAccount encodes a newAccountNative or newAccountERC20 call.
func PackNewAccount(c shielder.NewAccountCall) ([]byte, error) {
	if c.Token.IsNative() {
		return ShielderABI.Pack("newAccountNative", [3]byte(c.Version), c.NewNote.BigInt(),
			c.Prenullifier.BigInt(), orZero(c.ProtocolFee), orEmpty(c.Memo), orEmpty(c.Proof))
	}
	return ShielderABI.Pack("newAccountERC20", [3]byte(c.Version), c.Token.Address(), orZero(c.Amount),
		c.NewNote.BigInt(), c.Prenullifier.BigInt(), orZero(c.ProtocolFee), orEmpty(c.Memo), orEmpty(c.Proof))
}

// PackDeposit encodes a depositNative or depositERC20 call.
func PackDeposit(c shielder.DepositCall) ([]byte, error) {
	if c.Token.IsNative() {
		return ShielderABI.Pack("depositNative", [3]byte(c.Version), c.OldNullifierHash.BigInt(),
			c.NewNote.BigInt(), c.MerkleRoot.BigInt(), orZero(c.ProtocolFee), orEmpty(c.Memo), orEmpty(c.Proof))
	}
	return ShielderABI.Pack("depositERC20", [3]byte(c.Version), c.Token.Address(), orZero(c.Amount),
		c.OldNullifierHash.BigInt(), c.NewNote.BigInt(), c.MerkleRoot.BigInt(), orZero(c.ProtocolFee),
		orEmpty(c.Memo), orEmpty(c.Proof))
}

// PackWithdraw encodes a withdrawNative or withdrawERC20 call.
func PackWithdraw(c shielder.WithdrawCall) ([]byte, error) {
	if c.Token.IsNative() {
		return ShielderABI.Pack("withdrawNative", [3]byte(c.Version), orZero(c.Amount), c.Recipient,
			c.MerkleRoot.BigInt(), c.OldNullifierHash.BigInt(), c.NewNote.BigInt(), orEmpty(c.Proof),
			c.RelayerAddress, orZero(c.RelayerFee), orZero(c.ProtocolFee), orEmpty(c.Memo))
	}
	return ShielderABI.Pack("withdrawERC20", [3]byte(c.Version), c.Token.Address(), orZero(c.Amount),
		c.Recipient, c.MerkleRoot.BigInt(), c.OldNullifierHash.BigInt(), c.NewNote.BigInt(), orEmpty(c.Proof),
		c.RelayerAddress, orZero(c.RelayerFee), orZero(c.ProtocolFee), orEmpty(c.Memo))
}

// DecodeCall parses shielder calldata back into one of NewAccountCall, DepositCall or
// WithdrawCall. For native calls the amount is the attached value.
func DecodeCall(from common.Address, data []byte, value *big.Int) (any, error) {
	if len(data) < 4 {
		return nil, errUnknownSelector
	}
	method, err := ShielderABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnknownSelector, err)
	}
	args := map[string]any{}
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", method.Name, err)
	}
	d := argDecoder{args: args}
	token := shielder.NativeToken()
	amount := new(big.Int).Set(orZero(value))
	if _, ok := args["tokenAddress"]; ok {
		token = shielder.ERC20Token(d.address("tokenAddress"))
		amount = d.uint("amount")
	}

	var call any
	switch method.Name {
	case "newAccountNative", "newAccountERC20":
		call = shielder.NewAccountCall{
			Version:      d.version("expectedContractVersion"),
			From:         from,
			Token:        token,
			Amount:       amount,
			NewNote:      d.scalar("newNote"),
			Prenullifier: d.scalar("prenullifier"),
			ProtocolFee:  d.uint("protocolFee"),
			Memo:         d.bytes("memo"),
			Proof:        d.bytes("proof"),
		}
	case "depositNative", "depositERC20":
		call = shielder.DepositCall{
			Version:          d.version("expectedContractVersion"),
			From:             from,
			Token:            token,
			Amount:           amount,
			OldNullifierHash: d.scalar("oldNullifierHash"),
			NewNote:          d.scalar("newNote"),
			MerkleRoot:       d.scalar("merkleRoot"),
			ProtocolFee:      d.uint("protocolFee"),
			Memo:             d.bytes("memo"),
			Proof:            d.bytes("proof"),
		}
	case "withdrawNative", "withdrawERC20":
		call = shielder.WithdrawCall{
			Version:          d.version("expectedContractVersion"),
			From:             from,
			Token:            token,
			Amount:           d.uint("amount"),
			Recipient:        d.address("withdrawalAddress"),
			RelayerAddress:   d.address("relayerAddress"),
			RelayerFee:       d.uint("relayerFee"),
			OldNullifierHash: d.scalar("oldNullifierHash"),
			NewNote:          d.scalar("newNote"),
			MerkleRoot:       d.scalar("merkleRoot"),
			ProtocolFee:      d.uint("protocolFee"),
			Memo:             d.bytes("memo"),
			Proof:            d.bytes("proof"),
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSelector, method.Name)
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", method.Name, d.err)
	}
	return call, nil
}

// EventFromLog decodes a NewAccount, Deposit or Withdraw log.
func EventFromLog(l types.Log) (shielder.ProtocolEvent, error) {
	if len(l.Topics) == 0 {
		return shielder.ProtocolEvent{}, errors.New("log has no topics")
	}
	ev, err := ShielderABI.EventByID(l.Topics[0])
	if err != nil {
		return shielder.ProtocolEvent{}, err
	}
	args := map[string]any{}
	if err := ev.Inputs.UnpackIntoMap(args, l.Data); err != nil {
		return shielder.ProtocolEvent{}, fmt.Errorf("decode %s event: %w", ev.Name, err)
	}
	d := argDecoder{args: args}
	out := shielder.ProtocolEvent{
		Version:      d.version("contractVersion"),
		Amount:       d.uint("amount"),
		ProtocolFee:  d.uint("protocolFee"),
		NewNote:      d.scalar("newNote"),
		NewNoteIndex: d.uint("newNoteIndex"),
		TxHash:       l.TxHash,
		Block:        l.BlockNumber,
		TokenAddress: d.address("tokenAddress"),
		Memo:         d.bytes("memo"),
	}
	switch ev.Name {
	case "NewAccount":
		out.Kind = shielder.EventNewAccount
		out.Prenullifier = d.scalar("prenullifier")
	case "Deposit":
		out.Kind = shielder.EventDeposit
	case "Withdraw":
		out.Kind = shielder.EventWithdraw
		recipient := d.address("withdrawalAddress")
		relayer := d.address("relayerAddress")
		out.Recipient = &recipient
		out.RelayerAddress = &relayer
		out.RelayerFee = d.uint("fee")
	default:
		return shielder.ProtocolEvent{}, fmt.Errorf("unexpected event %s", ev.Name)
	}
	if d.err != nil {
		return shielder.ProtocolEvent{}, fmt.Errorf("decode %s event: %w", ev.Name, d.err)
	}
	return out, nil
}

// LogFromEvent encodes ev as the log the contract emits for it.
func LogFromEvent(ev shielder.ProtocolEvent, contract common.Address) (types.Log, error) {
	var (
		name string
		data []byte
		err  error
	)
	version := [3]byte(ev.Version)
	switch ev.Kind {
	case shielder.EventNewAccount:
		name = "NewAccount"
		data, err = ShielderABI.Events[name].Inputs.Pack(version, ev.TokenAddress, orZero(ev.Amount),
			ev.Prenullifier.BigInt(), ev.NewNote.BigInt(), orZero(ev.NewNoteIndex), orZero(ev.ProtocolFee), orEmpty(ev.Memo))
	case shielder.EventDeposit:
		name = "Deposit"
		data, err = ShielderABI.Events[name].Inputs.Pack(version, ev.TokenAddress, orZero(ev.Amount),
			ev.NewNote.BigInt(), orZero(ev.NewNoteIndex), orZero(ev.ProtocolFee), orEmpty(ev.Memo))
	case shielder.EventWithdraw:
		name = "Withdraw"
		var recipient, relayer common.Address
		if ev.Recipient != nil {
			recipient = *ev.Recipient
		}
		if ev.RelayerAddress != nil {
			relayer = *ev.RelayerAddress
		}
		data, err = ShielderABI.Events[name].Inputs.Pack(version, ev.TokenAddress, orZero(ev.Amount), recipient,
			ev.NewNote.BigInt(), orZero(ev.NewNoteIndex), relayer, orZero(ev.RelayerFee), orZero(ev.ProtocolFee), orEmpty(ev.Memo))
	default:
		return types.Log{}, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	if err != nil {
		return types.Log{}, fmt.Errorf("encode %s event: %w", name, err)
	}
	return types.Log{
		Address:     contract,
		Topics:      []common.Hash{ShielderABI.Events[name].ID},
		Data:        data,
		BlockNumber: ev.Block,
		TxHash:      ev.TxHash,
	}, nil
}

// PackWrongContractVersion encodes the revert data of a version refusal.
func PackWrongContractVersion(actual, expected shielder.ProtocolVersion) ([]byte, error) {
	abiErr := ShielderABI.Errors["WrongContractVersion"]
	args, err := abiErr.Inputs.Pack([3]byte(actual), [3]byte(expected))
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, abiErr.ID[:4]...), args...), nil
}

// UnpackWrongContractVersion recognises version refusal revert data.
func UnpackWrongContractVersion(data []byte) (*shielder.VersionRejectedByContractError, bool) {
	abiErr := ShielderABI.Errors["WrongContractVersion"]
	if len(data) < 4 || !equalSelector(data[:4], abiErr.ID[:4]) {
		return nil, false
	}
	vals, err := abiErr.Inputs.Unpack(data[4:])
	if err != nil || len(vals) != 2 {
		return nil, false
	}
	actual, ok1 := vals[0].([3]byte)
	expected, ok2 := vals[1].([3]byte)
	if !ok1 || !ok2 {
		return nil, false
	}
	return &shielder.VersionRejectedByContractError{
		Actual:   shielder.ProtocolVersion(actual),
		Expected: shielder.ProtocolVersion(expected),
	}, true
}

func equalSelector(a, b []byte) bool {
	return string(a) == string(b)
}

// argDecoder pulls typed values out of an unpacked argument map, keeping the first
// type error.
type argDecoder struct {
	args map[string]any
	err  error
}

func (d *argDecoder) fail(name string, v any) {
	if d.err == nil {
		d.err = fmt.Errorf("argument %s has unexpected type %T", name, v)
	}
}

func (d *argDecoder) uint(name string) *big.Int {
	v, ok := d.args[name].(*big.Int)
	if !ok {
		d.fail(name, d.args[name])
		return new(big.Int)
	}
	return v
}

func (d *argDecoder) scalar(name string) shielder.Scalar {
	v := d.uint(name)
	s, err := shielder.ScalarFromBigInt(v)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("argument %s: %w", name, err)
	}
	return s
}

func (d *argDecoder) address(name string) common.Address {
	v, ok := d.args[name].(common.Address)
	if !ok {
		d.fail(name, d.args[name])
	}
	return v
}

func (d *argDecoder) bytes(name string) []byte {
	v, ok := d.args[name].([]byte)
	if !ok {
		d.fail(name, d.args[name])
	}
	return v
}

func (d *argDecoder) version(name string) shielder.ProtocolVersion {
	v, ok := d.args[name].([3]byte)
	if !ok {
		d.fail(name, d.args[name])
	}
	return shielder.ProtocolVersion(v)
}

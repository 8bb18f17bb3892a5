// contract.go - Shielder contract client over an Ethereum JSON-RPC backend.

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"shielder/internal/shielder"
)

// Backend is the subset of ethclient.Client the contract needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Contract implements shielder.Ledger against a deployed shielder contract.
type Contract struct {
	backend Backend
	address common.Address
	log     zerolog.Logger
}

var _ shielder.Ledger = (*Contract)(nil)

// NewContract binds the shielder contract at address.
func NewContract(backend Backend, address common.Address, logger zerolog.Logger) *Contract {
	return &Contract{
		backend: backend,
		address: address,
		log:     logger.With().Str("component", "contract").Str("address", address.Hex()).Logger(),
	}
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ShielderABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, &shielder.TransportError{Op: "call " + method, Err: err}
	}
	return ShielderABI.Unpack(method, out)
}

func (c *Contract) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, vals[0])
	}
	return v, nil
}

func (c *Contract) GetMerklePath(ctx context.Context, noteIndex *big.Int) ([]*big.Int, error) {
	vals, err := c.call(ctx, "getMerklePath", noteIndex)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("getMerklePath returned %d values", len(vals))
	}
	path, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getMerklePath returned %T", vals[0])
	}
	return path, nil
}

// NullifierBlock reads the nullifier registry, which stores block number + 1 so that
// zero means absent.
func (c *Contract) NullifierBlock(ctx context.Context, nullifierHash *big.Int) (uint64, bool, error) {
	v, err := c.callUint(ctx, "nullifiers", nullifierHash)
	if err != nil {
		return 0, false, err
	}
	if v.Sign() == 0 {
		return 0, false, nil
	}
	if !v.IsUint64() {
		return 0, false, fmt.Errorf("nullifier block %s out of range", v)
	}
	return v.Uint64() - 1, true, nil
}

func (c *Contract) DepositFeeBps(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "protocolDepositFeeBps")
}

func (c *Contract) WithdrawFeeBps(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "protocolWithdrawFeeBps")
}

func (c *Contract) GetEventsFromBlock(ctx context.Context, block uint64) ([]shielder.ProtocolEvent, error) {
	return c.events(ctx, block, "NewAccount", "Deposit", "Withdraw")
}

func (c *Contract) GetNewAccountEventsFromBlock(ctx context.Context, block uint64) ([]shielder.ProtocolEvent, error) {
	return c.events(ctx, block, "NewAccount")
}

func (c *Contract) events(ctx context.Context, block uint64, names ...string) ([]shielder.ProtocolEvent, error) {
	ids := make([]common.Hash, len(names))
	for i, n := range names {
		ids[i] = ShielderABI.Events[n].ID
	}
	b := new(big.Int).SetUint64(block)
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: b,
		ToBlock:   b,
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{ids},
	})
	if err != nil {
		return nil, &shielder.TransportError{Op: "fetch logs", Err: err}
	}
	out := make([]shielder.ProtocolEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := EventFromLog(l)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	c.log.Debug().Uint64("block", block).Int("events", len(out)).Msg("fetched events")
	return out, nil
}

func (c *Contract) NewAccountCalldata(ctx context.Context, call shielder.NewAccountCall) ([]byte, error) {
	data, err := PackNewAccount(call)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if call.Token.IsNative() {
		value = orZero(call.Amount)
	}
	return data, c.simulate(ctx, call.From, data, value)
}

func (c *Contract) DepositCalldata(ctx context.Context, call shielder.DepositCall) ([]byte, error) {
	data, err := PackDeposit(call)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if call.Token.IsNative() {
		value = orZero(call.Amount)
	}
	return data, c.simulate(ctx, call.From, data, value)
}

func (c *Contract) WithdrawCalldata(ctx context.Context, call shielder.WithdrawCall) ([]byte, error) {
	data, err := PackWithdraw(call)
	if err != nil {
		return nil, err
	}
	return data, c.simulate(ctx, call.From, data, new(big.Int))
}

// simulate dry-runs a call so reverts surface before anything is signed.
func (c *Contract) simulate(ctx context.Context, from common.Address, data []byte, value *big.Int) error {
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &c.address, Data: data, Value: value}, nil)
	if err == nil {
		return nil
	}
	if verr, ok := versionRejection(err); ok {
		return verr
	}
	return fmt.Errorf("simulation reverted: %w", err)
}

func versionRejection(err error) (*shielder.VersionRejectedByContractError, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	var raw []byte
	switch v := de.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(v)
		if decErr != nil {
			return nil, false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return nil, false
	}
	return UnpackWrongContractVersion(raw)
}

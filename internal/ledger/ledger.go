// ledger.go - In-memory, append-only shielder ledger.
//
// The Ledger executes shielder calldata the way the contract does: it checks the
// version and protocol fee, rejects spent nullifiers and unknown roots, verifies the
// proof, appends the new note and emits an event. Each accepted transaction is mined
// into its own block. It backs local development and tests.

package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"shielder/internal/chain"
	"shielder/internal/shielder"
)

// DefaultAddress is the contract address used when none is configured.
var DefaultAddress = common.HexToAddress("0x5e11de5000000000000000000000000000000001")

var errUnknownTx = errors.New("unknown transaction")

// Options configure a new Ledger.
type Options struct {
	Address        common.Address
	Version        shielder.ProtocolVersion
	DepositFeeBps  int64
	WithdrawFeeBps int64
	Logger         zerolog.Logger
}

// Block groups the events of one mined transaction.
type Block struct {
	Number uint64                   `json:"number"`
	TxHash common.Hash              `json:"txHash"`
	Status uint64                   `json:"status"`
	Events []shielder.ProtocolEvent `json:"events"`
}

// Ledger is an in-memory shielder contract with its own chain of blocks.
type Ledger struct {
	mu             sync.RWMutex
	crypto         *shielder.CryptoClient
	address        common.Address
	version        shielder.ProtocolVersion
	depositFeeBps  *big.Int
	withdrawFeeBps *big.Int
	tree           *noteTree
	roots          map[string]struct{}
	nullifiers     map[string]uint64
	blocks         []Block
	txIndex        map[common.Hash]uint64
	log            zerolog.Logger
}

var _ shielder.Ledger = (*Ledger)(nil)

// New creates an empty ledger verifying proofs with cc.
func New(ctx context.Context, cc *shielder.CryptoClient, opts Options) (*Ledger, error) {
	height, err := cc.Tree.Height(ctx)
	if err != nil {
		return nil, err
	}
	arity, err := cc.Tree.Arity(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := newNoteTree(ctx, cc.Hasher, height, arity)
	if err != nil {
		return nil, err
	}
	if opts.Address == (common.Address{}) {
		opts.Address = DefaultAddress
	}
	if opts.Version == (shielder.ProtocolVersion{}) {
		opts.Version = shielder.CurrentVersion
	}
	for _, bps := range []int64{opts.DepositFeeBps, opts.WithdrawFeeBps} {
		if bps < 0 || bps >= shielder.MaxBps {
			return nil, fmt.Errorf("protocol fee %d bps out of range", bps)
		}
	}
	l := &Ledger{
		crypto:         cc,
		address:        opts.Address,
		version:        opts.Version,
		depositFeeBps:  big.NewInt(opts.DepositFeeBps),
		withdrawFeeBps: big.NewInt(opts.WithdrawFeeBps),
		tree:           tree,
		roots:          map[string]struct{}{},
		nullifiers:     map[string]uint64{},
		txIndex:        map[common.Hash]uint64{},
		log:            opts.Logger.With().Str("component", "ledger").Logger(),
	}
	l.roots[tree.root().String()] = struct{}{}
	return l, nil
}

func (l *Ledger) Address() common.Address { return l.address }

func (l *Ledger) Version() shielder.ProtocolVersion { return l.version }

// BlockNumber is the number of the latest mined block; 0 before any transaction.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

func (l *Ledger) GetMerklePath(_ context.Context, noteIndex *big.Int) ([]*big.Int, error) {
	if noteIndex == nil || noteIndex.Sign() < 0 || !noteIndex.IsUint64() {
		return nil, fmt.Errorf("invalid note index %v", noteIndex)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.path(noteIndex.Uint64())
}

func (l *Ledger) NullifierBlock(_ context.Context, nullifierHash *big.Int) (uint64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	block, ok := l.nullifiers[nullifierHash.String()]
	return block, ok, nil
}

func (l *Ledger) GetEventsFromBlock(_ context.Context, block uint64) ([]shielder.ProtocolEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if block == 0 || block > uint64(len(l.blocks)) {
		return nil, nil
	}
	return append([]shielder.ProtocolEvent(nil), l.blocks[block-1].Events...), nil
}

func (l *Ledger) GetNewAccountEventsFromBlock(ctx context.Context, block uint64) ([]shielder.ProtocolEvent, error) {
	all, err := l.GetEventsFromBlock(ctx, block)
	if err != nil {
		return nil, err
	}
	var out []shielder.ProtocolEvent
	for _, ev := range all {
		if ev.Kind == shielder.EventNewAccount {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (l *Ledger) DepositFeeBps(context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.depositFeeBps), nil
}

func (l *Ledger) WithdrawFeeBps(context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.withdrawFeeBps), nil
}

func (l *Ledger) checkVersion(v shielder.ProtocolVersion) error {
	if v != l.version {
		return &shielder.VersionRejectedByContractError{Actual: l.version, Expected: v}
	}
	return nil
}

func (l *Ledger) NewAccountCalldata(_ context.Context, call shielder.NewAccountCall) ([]byte, error) {
	if err := l.checkVersion(call.Version); err != nil {
		return nil, err
	}
	return chain.PackNewAccount(call)
}

func (l *Ledger) DepositCalldata(_ context.Context, call shielder.DepositCall) ([]byte, error) {
	if err := l.checkVersion(call.Version); err != nil {
		return nil, err
	}
	return chain.PackDeposit(call)
}

func (l *Ledger) WithdrawCalldata(_ context.Context, call shielder.WithdrawCall) ([]byte, error) {
	if err := l.checkVersion(call.Version); err != nil {
		return nil, err
	}
	return chain.PackWithdraw(call)
}

// Send mines tx into a new block. A transaction the contract would revert is still
// mined, with a failed receipt and no events. Malformed transactions are refused.
func (l *Ledger) Send(ctx context.Context, tx shielder.TxRequest) (common.Hash, error) {
	if tx.To != l.address {
		return common.Hash{}, fmt.Errorf("transaction to %s, ledger is %s", tx.To.Hex(), l.address.Hex())
	}
	call, err := chain.DecodeCall(tx.From, tx.Data, tx.Value)
	if err != nil {
		return common.Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	number := uint64(len(l.blocks)) + 1
	hash := l.txHash(tx, number)
	events, execErr := l.execute(ctx, call, number, hash)
	status := types.ReceiptStatusSuccessful
	if execErr != nil {
		status = types.ReceiptStatusFailed
		events = nil
		l.log.Warn().Err(execErr).Str("tx", hash.Hex()).Uint64("block", number).Msg("transaction reverted")
	} else {
		l.log.Info().Str("tx", hash.Hex()).Uint64("block", number).Int("events", len(events)).Msg("transaction mined")
	}
	l.blocks = append(l.blocks, Block{Number: number, TxHash: hash, Status: status, Events: events})
	l.txIndex[hash] = number
	return hash, nil
}

func (l *Ledger) txHash(tx shielder.TxRequest, number uint64) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], number)
	return crypto.Keccak256Hash(n[:], tx.From.Bytes(), tx.To.Bytes(), tx.Data)
}

// WaitForReceipt returns the receipt of a mined transaction. Transactions are mined
// synchronously by Send.
func (l *Ledger) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	number, ok := l.txIndex[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownTx, hash.Hex())
	}
	b := l.blocks[number-1]
	receipt := &types.Receipt{
		Status:      b.Status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(number),
		BlockHash:   blockHash(number),
	}
	for i, ev := range b.Events {
		lg, err := chain.LogFromEvent(ev, l.address)
		if err != nil {
			return nil, err
		}
		lg.BlockHash = receipt.BlockHash
		lg.Index = uint(i)
		receipt.Logs = append(receipt.Logs, &lg)
	}
	return receipt, nil
}

func blockHash(number uint64) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], number)
	return crypto.Keccak256Hash([]byte("block"), n[:])
}

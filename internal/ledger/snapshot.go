// snapshot.go - JSON persistence of the ledger.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/shielder"
)

type snapshot struct {
	Address        common.Address           `json:"address"`
	Version        shielder.ProtocolVersion `json:"version"`
	DepositFeeBps  int64                    `json:"depositFeeBps"`
	WithdrawFeeBps int64                    `json:"withdrawFeeBps"`
	Leaves         []shielder.Scalar        `json:"leaves"`
	Nullifiers     map[string]uint64        `json:"nullifiers"`
	Blocks         []Block                  `json:"blocks"`
}

// SaveToFile writes the ledger as indented JSON, overwriting path.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.RLock()
	snap := snapshot{
		Address:        l.address,
		Version:        l.version,
		DepositFeeBps:  l.depositFeeBps.Int64(),
		WithdrawFeeBps: l.withdrawFeeBps.Int64(),
		Leaves:         l.tree.leaves,
		Nullifiers:     l.nullifiers,
		Blocks:         l.blocks,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadFromFile rebuilds a ledger saved by SaveToFile. The note tree and its root
// history are recomputed from the leaves.
func LoadFromFile(ctx context.Context, path string, cc *shielder.CryptoClient, opts Options) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid ledger file %s: %w", path, err)
	}
	opts.Address = snap.Address
	opts.Version = snap.Version
	opts.DepositFeeBps = snap.DepositFeeBps
	opts.WithdrawFeeBps = snap.WithdrawFeeBps
	l, err := New(ctx, cc, opts)
	if err != nil {
		return nil, err
	}
	for _, leaf := range snap.Leaves {
		if _, err := l.tree.insert(ctx, leaf); err != nil {
			return nil, err
		}
		l.roots[l.tree.root().String()] = struct{}{}
	}
	if snap.Nullifiers != nil {
		l.nullifiers = snap.Nullifiers
	}
	l.blocks = snap.Blocks
	for _, b := range l.blocks {
		l.txIndex[b.TxHash] = b.Number
	}
	return l, nil
}

// OpenOrCreate loads path when it exists and starts an empty ledger otherwise.
func OpenOrCreate(ctx context.Context, path string, cc *shielder.CryptoClient, opts Options) (*Ledger, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadFromFile(ctx, path, cc, opts)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return New(ctx, cc, opts)
}

package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DefaultReceiptInterval = time.Second

// ReceiptBackend fetches transaction receipts.
type ReceiptBackend interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ReceiptWaiter polls for a receipt until it exists or ctx is done.
type ReceiptWaiter struct {
	backend  ReceiptBackend
	interval time.Duration
}

// NewReceiptWaiter polls backend every interval.
func NewReceiptWaiter(backend ReceiptBackend, interval time.Duration) *ReceiptWaiter {
	if interval <= 0 {
		interval = DefaultReceiptInterval
	}
	return &ReceiptWaiter{backend: backend, interval: interval}
}

func (w *ReceiptWaiter) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

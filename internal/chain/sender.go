// sender.go - Signs and submits transactions with a local key.

package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"shielder/internal/shielder"
)

// SenderBackend is the subset of ethclient.Client used to submit transactions.
type SenderBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeySender signs EIP-1559 transactions with a private key.
type KeySender struct {
	backend SenderBackend
	key     *ecdsa.PrivateKey
	chainID *big.Int
	from    common.Address
}

// NewKeySender signs with key for chainID.
func NewKeySender(backend SenderBackend, key *ecdsa.PrivateKey, chainID *big.Int) *KeySender {
	return &KeySender{
		backend: backend,
		key:     key,
		chainID: chainID,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *KeySender) From() common.Address { return s.from }

// Send matches shielder.SendTxFunc.
func (s *KeySender) Send(ctx context.Context, req shielder.TxRequest) (common.Hash, error) {
	if req.From != s.from {
		return common.Hash{}, fmt.Errorf("sender %s cannot sign for %s", s.from.Hex(), req.From.Hex())
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas tip: %w", err)
	}
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(orZero(head.BaseFee), big.NewInt(2)))
	to := req.To
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: req.Data, Value: orZero(req.Value)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     orZero(req.Value),
		Data:      req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}
